package domain

import "time"

// SigningKey is a persisted token signing key. The private key is encrypted
// at rest; retired keys stay published for verification.
type SigningKey struct {
	Kid                 string     `json:"kid"`
	Algorithm           string     `json:"algorithm"`
	PrivateKeyEncrypted []byte     `json:"private_key_encrypted"` // AES-256-GCM sealed PKCS8 PEM
	CreatedAt           time.Time  `json:"created_at"`
	RetiredAt           *time.Time `json:"retired_at,omitempty"`
}

func (k *SigningKey) IsActive() bool {
	return k.RetiredAt == nil
}
