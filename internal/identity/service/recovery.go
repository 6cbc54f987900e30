package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// InitiatePasswordReset opens a reset flow for a verified account and sends
// the link. Unknown emails fail with ErrNotFound, unverified accounts with
// ErrAuthenticationFailed. A new request replaces any open flow.
func (s *IdentityService) InitiatePasswordReset(ctx context.Context, email string) error {
	l := slogx.FromContext(ctx)

	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return internal(ctx, "load user", err)
	}
	if !u.EmailVerified {
		return ErrAuthenticationFailed
	}

	token, err := s.Tokens.SignOpaque(PurposeReset)
	if err != nil {
		return internal(ctx, "mint reset token", err)
	}

	expires := s.now().Add(ResetTTL)
	u, err = s.Users.Modify(ctx, u.ID, func(u *domain.User) error {
		u.PasswordResetToken = &token
		u.PasswordResetExpires = &expires
		return nil
	})
	if err != nil {
		return internal(ctx, "store reset token", err)
	}
	l.Info("password reset requested", slog.String("user_id", u.ID))

	if err := s.Mail.Deliver(ctx, u.Email, mail.KindReset, token); err != nil {
		l.Error("reset delivery failed", slog.String("user_id", u.ID), slog.Any("error", err))
		return ErrDeliveryFailed
	}
	return nil
}

// CompletePasswordReset sets a new passphrase for the account holding token
// and closes the flow. The token cannot be reused. The failed-login counter
// is cleared, which lifts a lockout.
func (s *IdentityService) CompletePasswordReset(ctx context.Context, token, newPassphrase string) error {
	if err := s.Tokens.VerifyOpaque(token, PurposeReset); err != nil {
		return ErrInvalidToken
	}

	u, err := s.Users.GetByResetToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return internal(ctx, "load user", err)
	}
	if err := checkReset(&u, token, s.now()); err != nil {
		return err
	}

	if err := checkStrength(newPassphrase, u.Email, reasonWeakReset); err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(newPassphrase)
	if err != nil {
		return internal(ctx, "hash passphrase", err)
	}

	_, err = s.Users.Modify(ctx, u.ID, func(u *domain.User) error {
		if err := checkReset(u, token, s.now()); err != nil {
			return err
		}
		u.PassphraseHash = hash
		u.PasswordResetToken = nil
		u.PasswordResetExpires = nil
		u.FailedLoginAttempts = 0
		return nil
	})
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return err
	case err != nil:
		return internal(ctx, "store passphrase", err)
	}
	slogx.FromContext(ctx).Info("password reset completed", slog.String("user_id", u.ID))
	return nil
}

// checkReset reports whether u still holds an open reset flow for token.
func checkReset(u *domain.User, token string, now time.Time) error {
	if u.PasswordResetToken == nil || *u.PasswordResetToken != token || u.PasswordResetExpires == nil {
		return ErrInvalidToken
	}
	if !now.Before(*u.PasswordResetExpires) {
		return ErrTokenExpired
	}
	return nil
}
