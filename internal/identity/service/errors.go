package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// Caller-facing failures. Every error returned by IdentityService matches
// exactly one of these with errors.Is; storage and crypto failures surface as
// ErrInternal only.
var (
	ErrInvalidCredentials   = errors.New("invalid_credentials")
	ErrAuthenticationFailed = errors.New("authentication_failed")
	ErrInvalidToken         = errors.New("invalid_token")
	ErrTokenExpired         = errors.New("token_expired")
	ErrNotFound             = errors.New("not_found")
	ErrAlreadyExists        = errors.New("already_exists")
	ErrWeakPassphrase       = errors.New("weak_passphrase")
	ErrRateLimitExceeded    = errors.New("rate_limit_exceeded")
	ErrTOTPAlreadyEnabled   = errors.New("totp_already_enabled")
	ErrTOTPNotEnabled       = errors.New("totp_not_enabled")
	ErrTOTPSetupPending     = errors.New("totp_setup_pending")
	ErrDeliveryFailed       = errors.New("delivery_failed")
	ErrInternal             = errors.New("internal_error")
)

const (
	reasonWeakRegister = "Passphrase is too weak. Please use a longer, more complex passphrase."
	reasonWeakReset    = "New passphrase is too weak. Please use a longer, more complex passphrase."
	reasonTooLong      = "Passphrase must be at most 128 characters."
)

// WeakPassphraseError carries the user-facing reason a passphrase was
// rejected. It matches ErrWeakPassphrase.
type WeakPassphraseError struct {
	Reason string
}

func (e *WeakPassphraseError) Error() string { return "weak_passphrase: " + e.Reason }

func (e *WeakPassphraseError) Is(target error) bool { return target == ErrWeakPassphrase }

// internal logs err with its cause and returns ErrInternal.
func internal(ctx context.Context, msg string, err error) error {
	slogx.FromContext(ctx).Error(msg, slog.Any("error", err))
	return ErrInternal
}
