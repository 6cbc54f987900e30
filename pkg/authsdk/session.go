package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry the session refreshes its token.
const refreshBuffer = 30 * time.Second

// Session is an authenticated session. Every method refreshes the access
// token first when it has expired. Sessions are safe for concurrent use.
type Session struct {
	client *Client

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(client *Client, tokens *TokenResponse) *Session {
	return &Session{
		client:       client,
		accessToken:  tokens.AccessToken,
		refreshToken: tokens.RefreshToken,
		expiresAt:    time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshBuffer),
	}
}

// getValidToken returns a valid access token, refreshing it if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}

	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	tokens, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	s.accessToken = tokens.AccessToken
	s.refreshToken = tokens.RefreshToken
	s.expiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn)*time.Second - refreshBuffer)

	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Me returns the authenticated account.
func (s *Session) Me(ctx context.Context) (*UserResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/me", nil)
	if err != nil {
		return nil, err
	}

	var user UserResponse
	if err := decodeJSON(resp, &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// SetupTOTP generates a pending two-factor secret. It takes effect only
// after EnableTOTP confirms a code from it.
func (s *Session) SetupTOTP(ctx context.Context) (*TOTPSetupResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/2fa/setup", nil)
	if err != nil {
		return nil, err
	}

	var setup TOTPSetupResponse
	if err := decodeJSON(resp, &setup, http.StatusOK); err != nil {
		return nil, err
	}
	return &setup, nil
}

func (s *Session) EnableTOTP(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/2fa/enable", TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	var msg MessageResponse
	return decodeJSON(resp, &msg, http.StatusOK)
}

func (s *Session) DisableTOTP(ctx context.Context, code string) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/2fa/disable", TOTPCodeRequest{Code: code})
	if err != nil {
		return err
	}
	var msg MessageResponse
	return decodeJSON(resp, &msg, http.StatusOK)
}
