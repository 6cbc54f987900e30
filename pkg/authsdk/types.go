package authsdk

import (
	"time"

	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

// ============================================================================
// Account Types
// ============================================================================

// RegisterRequest is the body of POST /v1/register.
type RegisterRequest struct {
	Email      string `json:"email" example:"alice@example.com"`
	Passphrase string `json:"passphrase" example:"correct horse battery staple"`
}

// LoginRequest is the body of POST /v1/login. TOTPCode is required only when
// two-factor authentication is enabled on the account.
type LoginRequest struct {
	Email      string `json:"email" example:"alice@example.com"`
	Passphrase string `json:"passphrase" example:"correct horse battery staple"`
	TOTPCode   string `json:"totp_code,omitempty" example:"123456"`
}

// EmailRequest is the body of the resend-verification and password-reset
// requests.
type EmailRequest struct {
	Email string `json:"email" example:"alice@example.com"`
}

// PasswordResetConfirmRequest is the body of POST /v1/password-reset/confirm.
type PasswordResetConfirmRequest struct {
	Token         string `json:"token"`
	NewPassphrase string `json:"new_passphrase" example:"a brand new long passphrase"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            string     `json:"id" example:"01J9Z3X4Q8W6T1N2M5B7C9D0EF"`
	Email         string     `json:"email" example:"alice@example.com"`
	EmailVerified bool       `json:"email_verified"`
	Status        string     `json:"status" example:"active"`
	TOTPEnabled   bool       `json:"totp_enabled"`
	CreatedAt     time.Time  `json:"created_at"`
	LastLogin     *time.Time `json:"last_login,omitempty"`
}

// MessageResponse acknowledges an operation that returns no resource.
type MessageResponse struct {
	Message string `json:"message" example:"email verified"`
}

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken string `json:"access_token"`

	// RefreshToken is a long-lived JWT used only to mint new access tokens.
	RefreshToken string `json:"refresh_token"`

	// TokenType is always "Bearer".
	TokenType string `json:"token_type" example:"Bearer"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in" example:"900"`
}

// JWKSResponse is the key set published at /.well-known/jwks.json.
type JWKSResponse jwtx.JWKS

// ============================================================================
// Two-Factor Types
// ============================================================================

// TOTPSetupResponse carries the pending secret and its otpauth:// URI.
type TOTPSetupResponse struct {
	Secret          string `json:"secret" example:"JBSWY3DPEHPK3PXP..."`
	ProvisioningURI string `json:"provisioning_uri" example:"otpauth://totp/Selfie:alice@example.com?secret=...&issuer=Selfie"`
}

// TOTPCodeRequest is the body of the 2FA enable and disable requests.
type TOTPCodeRequest struct {
	Code string `json:"code" example:"123456"`
}

// ============================================================================
// Health Types
// ============================================================================

type HealthResponse struct {
	// Status is "ok", "ready" or "not_ready".
	Status string `json:"status"`

	Uptime  string `json:"uptime,omitempty"`
	Version string `json:"version,omitempty"`

	Checks *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Store  string `json:"store"`
	Signer string `json:"signer"`
}
