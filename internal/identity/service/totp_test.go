package service

import (
	"encoding/base32"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	t.Parallel()
	s := &TOTPService{Issuer: "Selfie"}

	a, err := s.GenerateSecret()
	require.NoError(t, err)
	b, err := s.GenerateSecret()
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(a)
	require.NoError(t, err)
	require.Len(t, raw, 32)
}

func TestProvisioningURI(t *testing.T) {
	t.Parallel()
	s := &TOTPService{Issuer: "Selfie"}

	secret, err := s.GenerateSecret()
	require.NoError(t, err)

	raw, err := s.ProvisioningURI(secret, "alice@example.com")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "otpauth", u.Scheme)
	require.Equal(t, "/Selfie:alice@example.com", u.Path)
	require.Equal(t, secret, q.Get("secret"))
	require.Equal(t, "Selfie", q.Get("issuer"))
	require.Equal(t, "30", q.Get("period"))
	require.Equal(t, "6", q.Get("digits"))
	require.Equal(t, "SHA1", q.Get("algorithm"))

	_, err = s.ProvisioningURI("not base32!", "alice@example.com")
	require.Error(t, err)
}

func TestVerifyCodeWindow(t *testing.T) {
	t.Parallel()
	clk := newClock()
	h := &harness{clock: clk}
	s := &TOTPService{Issuer: "Selfie", Now: clk.Now}

	secret, err := s.GenerateSecret()
	require.NoError(t, err)

	tests := []struct {
		name  string
		steps int
		want  bool
	}{
		{"current step", 0, true},
		{"previous step", -1, true},
		{"next step", 1, true},
		{"two steps behind", -2, false},
		{"two steps ahead", 2, false},
		{"far away", 40, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, s.VerifyCode(secret, h.code(t, secret, tt.steps)))
		})
	}

	require.False(t, s.VerifyCode(secret, ""))
	require.False(t, s.VerifyCode(secret, "12345"))
	require.False(t, s.VerifyCode(secret, "abcdef"))

	code := h.code(t, secret, 0)
	clk.Advance(5 * time.Minute)
	require.False(t, s.VerifyCode(secret, code))
}
