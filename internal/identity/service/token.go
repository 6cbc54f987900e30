package service

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

// Purposes bound into opaque tokens so a verification token cannot complete
// a password reset and vice versa.
const (
	PurposeVerification = "verify"
	PurposeReset        = "reset"
)

// TokenService issues and checks the service's bearer tokens and the opaque
// tokens embedded in emailed links. Both are signed with the active key.
type TokenService struct {
	Keys   *jwtx.KeyManager
	Issuer string
	Now    func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Issue returns a signed token of kind for userID.
func (s *TokenService) Issue(userID string, kind jwtx.Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("token: unknown kind %q", kind)
	}
	return s.Keys.Signer.Sign(jwtx.NewClaims(userID, kind, s.Issuer, s.now()))
}

// IssuePair returns a fresh access and refresh token for userID.
func (s *TokenService) IssuePair(userID string) (domain.TokenPair, error) {
	access, err := s.Issue(userID, jwtx.KindAccess)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.Issue(userID, jwtx.KindRefresh)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(jwtx.AccessTokenTTL / time.Second),
	}, nil
}

// Verify checks token as kind and returns its subject. Any failure,
// expiry included, is ErrInvalidToken.
func (s *TokenService) Verify(token string, kind jwtx.Kind) (string, error) {
	claims, err := s.Keys.Verifier.Verify(token, kind)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}

// SignOpaque mints a random single-use token bound to purpose.
func (s *TokenService) SignOpaque(purpose string) (string, error) {
	nonce, err := cryptox.RandomBytes(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	return jwtx.SignOpaque(s.Keys.Signer, append(nonce, purpose...)), nil
}

// VerifyOpaque checks that token was minted by SignOpaque for purpose with
// one of the published keys.
func (s *TokenService) VerifyOpaque(token, purpose string) error {
	payload, err := jwtx.VerifyOpaque(s.Keys.KeySet, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if len(payload) != cryptox.TokenSize256+len(purpose) || !bytes.HasSuffix(payload, []byte(purpose)) {
		return ErrInvalidToken
	}
	return nil
}

// IsExpired reports whether err came from an expired bearer token.
func IsExpired(err error) bool {
	return errors.Is(err, jwtx.ErrExpired)
}
