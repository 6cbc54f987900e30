package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// SetupTOTP generates a secret for userID and stores it unconfirmed. It
// fails with ErrTOTPAlreadyEnabled when 2FA is on and ErrTOTPSetupPending
// when an unconfirmed secret already exists.
func (s *IdentityService) SetupTOTP(ctx context.Context, userID string) (domain.TOTPSetup, error) {
	secret, err := s.TOTP.GenerateSecret()
	if err != nil {
		return domain.TOTPSetup{}, internal(ctx, "generate totp secret", err)
	}

	u, err := s.Users.Modify(ctx, userID, func(u *domain.User) error {
		switch {
		case u.TOTPEnabled:
			return ErrTOTPAlreadyEnabled
		case u.HasPendingTOTP():
			return ErrTOTPSetupPending
		}
		u.TOTPSecret = &secret
		return nil
	})
	if err != nil {
		return domain.TOTPSetup{}, s.mfaError(ctx, "setup totp", err)
	}

	uri, err := s.TOTP.ProvisioningURI(secret, u.Email)
	if err != nil {
		return domain.TOTPSetup{}, internal(ctx, "build provisioning uri", err)
	}
	slogx.FromContext(ctx).Info("totp setup started", slog.String("user_id", userID))
	return domain.TOTPSetup{Secret: secret, ProvisioningURI: uri}, nil
}

// EnableTOTP confirms the pending secret with code and turns 2FA on.
func (s *IdentityService) EnableTOTP(ctx context.Context, userID, code string) error {
	_, err := s.Users.Modify(ctx, userID, func(u *domain.User) error {
		switch {
		case u.TOTPEnabled:
			return ErrTOTPAlreadyEnabled
		case u.TOTPSecret == nil:
			return ErrTOTPNotEnabled
		case !s.TOTP.VerifyCode(*u.TOTPSecret, code):
			return ErrInvalidCredentials
		}
		u.TOTPEnabled = true
		return nil
	})
	if err != nil {
		return s.mfaError(ctx, "enable totp", err)
	}
	slogx.FromContext(ctx).Info("totp enabled", slog.String("user_id", userID))
	return nil
}

// DisableTOTP checks code against the enabled secret, then removes it.
func (s *IdentityService) DisableTOTP(ctx context.Context, userID, code string) error {
	_, err := s.Users.Modify(ctx, userID, func(u *domain.User) error {
		switch {
		case !u.TOTPEnabled || u.TOTPSecret == nil:
			return ErrTOTPNotEnabled
		case !s.TOTP.VerifyCode(*u.TOTPSecret, code):
			return ErrInvalidCredentials
		}
		u.TOTPEnabled = false
		u.TOTPSecret = nil
		return nil
	})
	if err != nil {
		return s.mfaError(ctx, "disable totp", err)
	}
	slogx.FromContext(ctx).Info("totp disabled", slog.String("user_id", userID))
	return nil
}

// mfaError passes taxonomy errors raised inside Modify through unchanged.
func (s *IdentityService) mfaError(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, ErrTOTPAlreadyEnabled),
		errors.Is(err, ErrTOTPSetupPending),
		errors.Is(err, ErrTOTPNotEnabled),
		errors.Is(err, ErrInvalidCredentials):
		return err
	}
	return internal(ctx, op, err)
}
