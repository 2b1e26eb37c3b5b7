package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"code-indexer/internal/pkg/config"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// AdminClaims 管理接口调用方
type AdminClaims struct {
	Type string `json:"type"` // access
	jwt.RegisteredClaims
}

// GenerateAccessToken 生成访问Token, subject 一般是调用方服务名
func GenerateAccessToken(cfg config.JWTConfig, subject string) (string, error) {
	expire := time.Duration(cfg.AccessTokenExpire) * time.Second
	if expire <= 0 {
		expire = 24 * time.Hour
	}

	claims := AdminClaims{
		Type: constants.JWTTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expire)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken 解析Token
func ParseToken(cfg config.JWTConfig, tokenString string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名方法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	})

	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeUnauthorized, "解析Token失败", err)
	}

	if claims, ok := token.Claims.(*AdminClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, pkgErrors.ErrInvalidToken
}

// ValidateToken 验证Token有效性
func ValidateToken(cfg config.JWTConfig, tokenString string) (*AdminClaims, error) {
	claims, err := ParseToken(cfg, tokenString)
	if err != nil {
		return nil, err
	}

	// 检查是否过期
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, pkgErrors.ErrTokenExpired
	}

	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return nil, pkgErrors.ErrInvalidToken
	}

	return claims, nil
}
