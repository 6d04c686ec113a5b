// Package crypto seals message content at rest with XChaCha20-Poly1305.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

var ErrNoKey = errors.New("encryption key not configured")

// ContentCipher implements core.Cipher. Ciphertext is base64url of
// nonce || sealed box.
type ContentCipher struct {
	aead cipher.AEAD
}

// NewContentCipher accepts a base64 encoded 32-byte key, a raw 32-byte key
// or any other passphrase, which is stretched with SHA-256.
func NewContentCipher(key string) (*ContentCipher, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	aead, err := chacha20poly1305.NewX(deriveKey(key))
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &ContentCipher{aead: aead}, nil
}

func deriveKey(key string) []byte {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(key); err == nil && len(b) == chacha20poly1305.KeySize {
			return b
		}
	}
	if len(key) == chacha20poly1305.KeySize {
		return []byte(key)
	}
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

func (c *ContentCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt returns ciphertext unchanged when it cannot be opened, so rows
// stored before encryption was enabled still read back.
func (c *ContentCipher) Decrypt(ciphertext string) string {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil || len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return ciphertext
	}
	nonce, box := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, box, nil)
	if err != nil {
		return ciphertext
	}
	return string(plain)
}

// Plaintext stores content as is. Debug mode falls back to it when no key is set.
type Plaintext struct{}

func (Plaintext) Encrypt(s string) (string, error) { return s, nil }
func (Plaintext) Decrypt(s string) string          { return s }
