package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"code-indexer/internal/pkg/config"
	"code-indexer/internal/pkg/jwt"
	"code-indexer/pkg/constants"
	"code-indexer/pkg/responses"
)

// AuthMiddleware JWT认证中间件, 未配置 secret 时不校验
func AuthMiddleware(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			c.Next()
			return
		}

		// 获取Authorization header
		authHeader := c.GetHeader(constants.HeaderAuthorization)
		if authHeader == "" {
			responses.ErrorWithCode(c, responses.CodeUnauthorized, "缺少Authorization Header")
			c.Abort()
			return
		}

		// 检查Bearer前缀
		if !strings.HasPrefix(authHeader, constants.HeaderBearerPrefix) {
			responses.ErrorWithCode(c, responses.CodeUnauthorized, "Authorization格式错误")
			c.Abort()
			return
		}

		// 提取Token
		token := strings.TrimPrefix(authHeader, constants.HeaderBearerPrefix)

		// 验证Token
		claims, err := jwt.ValidateToken(cfg, token)
		if err != nil {
			responses.Error(c, err)
			c.Abort()
			return
		}

		// 检查Token类型(必须是AccessToken)
		if claims.Type != constants.JWTTypeAccess {
			responses.ErrorWithCode(c, responses.CodeUnauthorized, "无效的Token类型")
			c.Abort()
			return
		}

		c.Set(constants.JWTContextKey, claims.Subject)
		c.Next()
	}
}
