package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token lifetimes.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Kind is the explicit type tag carried by every token so a refresh token can
// never stand in for an access token.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// TTL returns the lifetime for tokens of this kind.
func (k Kind) TTL() time.Duration {
	if k == KindRefresh {
		return RefreshTokenTTL
	}
	return AccessTokenTTL
}

func (k Kind) Valid() bool { return k == KindAccess || k == KindRefresh }

// Claims are the claims of both token kinds. Any service holding the public
// keys can validate them without calling back into the identity service.
type Claims struct {
	jwt.RegisteredClaims

	Type Kind `json:"type"`
}

// NewClaims builds claims for subject valid from now for kind.TTL().
func NewClaims(subject string, kind Kind, issuer string, now time.Time) Claims {
	now = now.UTC()
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(kind.TTL())),
			ID:        NewJTI(),
		},
		Type: kind,
	}
}

// NewJTI returns a random v4 UUID for the "jti" claim.
func NewJTI() string {
	return uuid.NewString()
}

// validateRequired checks the claims every token must carry beyond what the
// jwt parser already enforces (exp, iat).
func (c *Claims) validateRequired() error {
	if c.Subject == "" || c.ID == "" || c.IssuedAt == nil || c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !c.Type.Valid() {
		return ErrInvalidClaim
	}
	return nil
}
