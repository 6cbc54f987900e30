package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the Selfie identity service. It covers the public
// operations and creates authenticated Sessions.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a new account. The account stays pending until the
// emailed verification link is followed.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	var user UserResponse
	if err := c.postJSON(ctx, "/v1/register", req, &user, http.StatusCreated); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a token pair and wraps it in a Session.
// totpCode may be empty for accounts without two-factor authentication.
func (c *Client) Login(ctx context.Context, email, passphrase, totpCode string) (*Session, error) {
	tokens, err := c.LoginTokens(ctx, LoginRequest{Email: email, Passphrase: passphrase, TOTPCode: totpCode})
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// LoginTokens is Login without the Session wrapper.
func (c *Client) LoginTokens(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := c.postJSON(ctx, "/v1/login", req, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// Refresh mints a new token pair from a refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/token/refresh", nil, map[string]string{
		"Authorization": "Bearer " + refreshToken,
	})
	if err != nil {
		return nil, err
	}

	var tokens TokenResponse
	if err := decodeJSON(resp, &tokens, http.StatusOK); err != nil {
		return nil, err
	}
	return &tokens, nil
}

// VerifyEmail follows a verification link token.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/verify-email?token="+url.QueryEscape(token), nil, nil)
	if err != nil {
		return err
	}
	var msg MessageResponse
	return decodeJSON(resp, &msg, http.StatusOK)
}

// ResendVerification asks for a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	var msg MessageResponse
	return c.postJSON(ctx, "/v1/verify-email/resend", EmailRequest{Email: email}, &msg, http.StatusAccepted)
}

// RequestPasswordReset starts a password reset for email.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	var msg MessageResponse
	return c.postJSON(ctx, "/v1/password-reset", EmailRequest{Email: email}, &msg, http.StatusAccepted)
}

// ResetPassword completes a password reset with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassphrase string) error {
	var msg MessageResponse
	req := PasswordResetConfirmRequest{Token: token, NewPassphrase: newPassphrase}
	return c.postJSON(ctx, "/v1/password-reset/confirm", req, &msg, http.StatusOK)
}

// NewSessionFromTokens creates a session from previously issued tokens.
func (c *Client) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return newSession(c, &TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}
