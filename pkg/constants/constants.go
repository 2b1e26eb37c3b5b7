package constants

// JWT 相关
const (
	JWTContextKey = "jwt_subject"
	JWTTypeAccess = "access"
)

// HTTP Header
const (
	HeaderAuthorization = "Authorization"
	HeaderBearerPrefix  = "Bearer "
)
