package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingKey      = errors.New("未配置 AES Key")
	ErrInvalidKey      = errors.New("AES Key 长度必须为32字节")
	ErrMalformedSecret = errors.New("密文格式非法")
)

// newGCM AES-256-GCM, nonce 拼在密文前面
func newGCM(key string) (cipher.AEAD, error) {
	switch {
	case key == "":
		return nil, ErrMissingKey
	case len(key) != 32:
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// EncryptSecret 加密 connection 凭证 / secret 配置, 输出 base64(nonce || ciphertext)
func EncryptSecret(key, plaintext string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成 nonce 失败: %w", err)
	}
	return base64.StdEncoding.EncodeToString(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

// DecryptSecret EncryptSecret 的逆操作
func DecryptSecret(key, encoded string) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < gcm.NonceSize() {
		return "", ErrMalformedSecret
	}

	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %w", err)
	}
	return string(plaintext), nil
}
