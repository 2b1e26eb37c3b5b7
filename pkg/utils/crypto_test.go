package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-indexer/pkg/utils"
)

func TestSecretRoundTrip(t *testing.T) {
	key := strings.Repeat("k", 32)

	enc, err := utils.EncryptSecret(key, `{"user":"elastic"}`)
	require.NoError(t, err)
	assert.NotContains(t, enc, "elastic")

	plain, err := utils.DecryptSecret(key, enc)
	require.NoError(t, err)
	assert.Equal(t, `{"user":"elastic"}`, plain)

	// 同一明文每次 nonce 不同
	again, err := utils.EncryptSecret(key, `{"user":"elastic"}`)
	require.NoError(t, err)
	assert.NotEqual(t, enc, again)
}

func TestSecretErrors(t *testing.T) {
	key := strings.Repeat("k", 32)

	_, err := utils.EncryptSecret("", "x")
	assert.ErrorIs(t, err, utils.ErrMissingKey)
	_, err = utils.EncryptSecret("short", "x")
	assert.ErrorIs(t, err, utils.ErrInvalidKey)

	_, err = utils.DecryptSecret(key, "%%%")
	assert.ErrorIs(t, err, utils.ErrMalformedSecret)
	_, err = utils.DecryptSecret(key, "AAAA")
	assert.ErrorIs(t, err, utils.ErrMalformedSecret)

	enc, err := utils.EncryptSecret(key, "x")
	require.NoError(t, err)
	_, err = utils.DecryptSecret(strings.Repeat("z", 32), enc)
	assert.Error(t, err)
}
