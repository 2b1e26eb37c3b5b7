package jwt_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-indexer/internal/pkg/config"
	"code-indexer/internal/pkg/jwt"
	pkgErrors "code-indexer/pkg/errors"
)

func TestTokenRoundTrip(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "code-indexer", AccessTokenExpire: 60}

	token, err := jwt.GenerateAccessToken(cfg, "embedding-pipeline")
	require.NoError(t, err)

	claims, err := jwt.ValidateToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "embedding-pipeline", claims.Subject)
	assert.Equal(t, "access", claims.Type)
}

func TestValidateToken_Rejects(t *testing.T) {
	cfg := config.JWTConfig{Secret: "s3cret", Issuer: "code-indexer", AccessTokenExpire: 60}
	token, err := jwt.GenerateAccessToken(cfg, "ops")
	require.NoError(t, err)

	_, err = jwt.ValidateToken(config.JWTConfig{Secret: "other", Issuer: "code-indexer"}, token)
	assert.True(t, pkgErrors.HasCode(err, pkgErrors.CodeUnauthorized))

	_, err = jwt.ValidateToken(config.JWTConfig{Secret: "s3cret", Issuer: "someone-else"}, token)
	assert.True(t, errors.Is(err, pkgErrors.ErrInvalidToken))

	_, err = jwt.ValidateToken(cfg, "not-a-token")
	assert.Error(t, err)
}
