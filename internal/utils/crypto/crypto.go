package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// Associated-data domains. A ciphertext sealed under one domain cannot be
// opened under another, so a leaked blob is useless outside its context.
const (
	AADServiceToken  = "service_token"
	AADTunnelToken   = "tunnel_token"
	AADOAuthTokens   = "oauth_tokens"
	AADServerSecrets = "server_secrets"
	AADSettings      = "settings"
)

var (
	// ErrKeyMissing is returned when a Cipher is constructed without a key.
	ErrKeyMissing = errors.New("encryption key cannot be empty")
	// ErrNoValue is returned when there is nothing to decrypt. Callers use
	// it to distinguish "not set" from a real failure.
	ErrNoValue = errors.New("no encrypted value")
	// ErrDecryptFailed is returned when authentication fails: wrong key,
	// wrong associated data, or a tampered blob. Policy caches fail closed
	// on this.
	ErrDecryptFailed = errors.New("decryption failed")
)

// Cipher performs AES-256-GCM authenticated encryption with a process-wide
// key. The key is normalized to 32 bytes the same way across the platform.
type Cipher struct {
	key []byte
}

// New creates a Cipher from the configured key material.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrKeyMissing
	}
	return &Cipher{key: normalizeKey(secret)}, nil
}

// normalizeKey pads or truncates the key to 32 bytes for AES-256.
func normalizeKey(secret string) []byte {
	key := []byte(secret)
	if len(key) < 32 {
		paddedKey := make([]byte, 32)
		copy(paddedKey, key)
		return paddedKey
	}
	return key[:32]
}

// Encrypt seals plaintext under the given associated-data domain. The random
// nonce is prepended to the returned blob.
func (c *Cipher) Encrypt(plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Decrypt opens a blob produced by Encrypt under the same associated data.
func (c *Cipher) Decrypt(data, aad []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrNoValue
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrDecryptFailed
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plaintext, nil
}

// EncryptString seals a string and returns the blob base64 encoded, which is
// how encrypted values are stored in settings and source rows.
func (c *Cipher) EncryptString(plaintext, aad string) (string, error) {
	out, err := c.Encrypt([]byte(plaintext), []byte(aad))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// DecryptString reverses EncryptString.
func (c *Cipher) DecryptString(encoded, aad string) (string, error) {
	if encoded == "" {
		return "", ErrNoValue
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptFailed
	}

	plaintext, err := c.Decrypt(data, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
