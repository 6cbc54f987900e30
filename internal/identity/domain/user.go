package domain

import (
	"fmt"
	"time"
)

// Status is the account lifecycle state.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusInactive            Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingVerification, StatusActive, StatusSuspended, StatusInactive:
		return true
	}
	return false
}

// CanLogin reports whether an account in this state may receive tokens.
// Pending accounts can log in; verification gates password reset only.
func (s Status) CanLogin() bool {
	return s == StatusActive || s == StatusPendingVerification
}

// Lockout policy.
const (
	MaxFailedLogins = 5
	LockoutWindow   = time.Hour
)

type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	PassphraseHash string `json:"passphrase_hash"` // argon2id encoded

	TOTPSecret  *string `json:"totp_secret,omitempty"` // base32, present while pending or enabled
	TOTPEnabled bool    `json:"totp_enabled"`

	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LastLogin           *time.Time `json:"last_login,omitempty"`

	EmailVerified          bool    `json:"email_verified"`
	EmailVerificationToken *string `json:"email_verification_token,omitempty"`
	Status                 Status  `json:"status"`

	PasswordResetToken   *string    `json:"password_reset_token,omitempty"`
	PasswordResetExpires *time.Time `json:"password_reset_expires,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLocked reports whether too many failed logins block further attempts.
// The window is anchored on the last successful login, so an account that
// has never logged in stays locked until a password reset clears the counter.
func (u *User) IsLocked(now time.Time) bool {
	if u.FailedLoginAttempts < MaxFailedLogins {
		return false
	}
	if u.LastLogin == nil {
		return true
	}
	return u.LastLogin.Add(LockoutWindow).After(now)
}

// HasPendingTOTP reports whether a secret was generated but not confirmed.
func (u *User) HasPendingTOTP() bool {
	return u.TOTPSecret != nil && !u.TOTPEnabled
}

// ResetOpen reports whether a password reset can still be completed.
func (u *User) ResetOpen(now time.Time) bool {
	return u.PasswordResetToken != nil && u.PasswordResetExpires != nil && now.Before(*u.PasswordResetExpires)
}

// Validate checks the invariants every stored user must satisfy.
func (u *User) Validate() error {
	switch {
	case u.ID == "":
		return fmt.Errorf("domain: user id is required")
	case u.Email == "":
		return fmt.Errorf("domain: user email is required")
	case u.PassphraseHash == "":
		return fmt.Errorf("domain: passphrase hash is required")
	case !u.Status.Valid():
		return fmt.Errorf("domain: invalid status %q", u.Status)
	case u.TOTPEnabled && u.TOTPSecret == nil:
		return fmt.Errorf("domain: totp enabled without a secret")
	case u.Status == StatusActive && !u.EmailVerified:
		return fmt.Errorf("domain: active user must have a verified email")
	case (u.PasswordResetToken == nil) != (u.PasswordResetExpires == nil):
		return fmt.Errorf("domain: reset token and expiry must be set together")
	}
	return nil
}
