package jwtx

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
)

var ErrOpaqueInvalid = errors.New("jwtx: invalid opaque token")

// SignOpaque signs payload with s and returns base64url(payload || signature).
// The result is not a JWT; it carries no claims and is only meaningful to a
// holder of the matching key set.
func SignOpaque(s Signer, payload []byte) string {
	sig := s.SignBytes(payload)
	buf := make([]byte, 0, len(payload)+len(sig))
	buf = append(buf, payload...)
	buf = append(buf, sig...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// VerifyOpaque checks token against every key in keys and returns the signed
// payload.
func VerifyOpaque(keys *KeySet, token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) <= ed25519.SignatureSize {
		return nil, ErrOpaqueInvalid
	}

	split := len(raw) - ed25519.SignatureSize
	payload, sig := raw[:split], raw[split:]
	if !keys.VerifyBytes(payload, sig) {
		return nil, ErrOpaqueInvalid
	}
	return payload, nil
}
