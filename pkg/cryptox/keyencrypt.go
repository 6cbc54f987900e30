package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// KeyCipher seals private key material at rest with AES-256-GCM.
// Sealed layout: [12-byte nonce][ciphertext][16-byte tag].
type KeyCipher struct {
	aead cipher.AEAD
}

// NewKeyCipher derives the AES-256 key as SHA-256(material).
func NewKeyCipher(material []byte) (*KeyCipher, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}
	key := sha256.Sum256(material)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &KeyCipher{aead: aead}, nil
}

// LoadKeyCipher builds a KeyCipher from the file at path when set, otherwise
// from envValue. One of the two is required.
func LoadKeyCipher(path, envValue string) (*KeyCipher, error) {
	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cryptox: read master key file: %w", err)
		}
		return NewKeyCipher(data)
	case envValue != "":
		return NewKeyCipher([]byte(envValue))
	default:
		return nil, errors.New("cryptox: no master key configured")
	}
}

func (c *KeyCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *KeyCipher) Open(sealed []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, errors.New("cryptox: ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plaintext, nil
}
