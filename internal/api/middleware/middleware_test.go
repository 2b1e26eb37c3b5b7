package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-indexer/internal/api/middleware"
	"code-indexer/internal/pkg/config"
	"code-indexer/internal/pkg/jwt"
	"code-indexer/pkg/constants"
)

func newEngine(cfg config.JWTConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.LoggerMiddleware(), middleware.AuthMiddleware(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(constants.JWTContextKey))
	})
	return r
}

func TestLoggerMiddleware_RequestID(t *testing.T) {
	r := newEngine(config.JWTConfig{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(middleware.HeaderRequestID, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(middleware.HeaderRequestID))
}

func TestAuthMiddleware(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", AccessTokenExpire: int(time.Hour.Seconds())}
	r := newEngine(cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Contains(t, w.Body.String(), "缺少Authorization Header")

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(constants.HeaderAuthorization, "Token xyz")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), "Authorization格式错误")

	token, err := jwt.GenerateAccessToken(cfg, "ops")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(constants.HeaderAuthorization, constants.HeaderBearerPrefix+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "ops", w.Body.String())
}
