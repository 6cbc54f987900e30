package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClaims(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("AEDT", 11*3600))

	tests := []struct {
		kind Kind
		ttl  time.Duration
	}{
		{KindAccess, 15 * time.Minute},
		{KindRefresh, 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := NewClaims("user-1", tt.kind, "selfie", now)

			require.Equal(t, "user-1", c.Subject)
			require.Equal(t, "selfie", c.Issuer)
			require.Equal(t, tt.kind, c.Type)
			require.Equal(t, time.UTC, c.IssuedAt.Location())
			require.Equal(t, now.Add(tt.ttl).Unix(), c.ExpiresAt.Unix())
			require.NotEmpty(t, c.ID)
			require.NoError(t, c.validateRequired())
		})
	}
}

func TestNewClaimsUniqueJTI(t *testing.T) {
	now := time.Now()
	a := NewClaims("user-1", KindAccess, "selfie", now)
	b := NewClaims("user-1", KindAccess, "selfie", now)
	require.NotEqual(t, a.ID, b.ID)
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Claims)
	}{
		{"missing subject", func(c *Claims) { c.Subject = "" }},
		{"missing jti", func(c *Claims) { c.ID = "" }},
		{"missing iat", func(c *Claims) { c.IssuedAt = nil }},
		{"missing exp", func(c *Claims) { c.ExpiresAt = nil }},
		{"unknown type", func(c *Claims) { c.Type = "id" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClaims("user-1", KindAccess, "selfie", time.Now())
			tt.mutate(&c)
			require.ErrorIs(t, c.validateRequired(), ErrInvalidClaim)
		})
	}
}
