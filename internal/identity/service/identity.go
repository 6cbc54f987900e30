package service

import (
	"context"
	"errors"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/idx"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
	"github.com/aussiebroadwan/selfie/pkg/slogx"
)

// ResetTTL bounds how long a password reset link stays usable.
const ResetTTL = time.Hour

// errVerified aborts a Modify when the account got verified concurrently.
var errVerified = errors.New("already verified")

// UserRepository is the persistence IdentityService needs. *store.Users
// implements it.
type UserRepository interface {
	Create(ctx context.Context, u domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByVerificationToken(ctx context.Context, token string) (domain.User, error)
	GetByResetToken(ctx context.Context, token string) (domain.User, error)
	Update(ctx context.Context, u domain.User) error
	Modify(ctx context.Context, id string, fn func(u *domain.User) error) (domain.User, error)
}

var _ UserRepository = (*store.Users)(nil)

// IdentityService orchestrates registration, login, second factor and
// account recovery on top of the repository and the token services.
type IdentityService struct {
	Users  UserRepository
	Hasher cryptox.PasswordHasher
	Tokens *TokenService
	TOTP   *TOTPService
	Mail   mail.Deliverer
	Now    func() time.Time
}

func (s *IdentityService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// checkStrength rejects passphrases below the strength thresholds and those
// longer than the estimator scores. email is fed to the estimator so
// passphrases built from it score lower.
func checkStrength(passphrase, email, reason string) error {
	if utf8.RuneCountInString(passphrase) > cryptox.MaxStrengthInput {
		return &WeakPassphraseError{Reason: reasonTooLong}
	}
	if !cryptox.EstimateStrength(passphrase, email).Acceptable() {
		return &WeakPassphraseError{Reason: reason}
	}
	return nil
}

// Register creates a user in pending_verification and sends the
// verification link. If delivery fails the account is kept and
// ErrDeliveryFailed is returned; the user can ask for a resend.
func (s *IdentityService) Register(ctx context.Context, email, passphrase string) (domain.PublicUser, error) {
	l := slogx.FromContext(ctx)

	if err := checkStrength(passphrase, email, reasonWeakRegister); err != nil {
		return domain.PublicUser{}, err
	}

	hash, err := s.Hasher.Hash(passphrase)
	if err != nil {
		return domain.PublicUser{}, internal(ctx, "hash passphrase", err)
	}

	token, err := s.Tokens.SignOpaque(PurposeVerification)
	if err != nil {
		return domain.PublicUser{}, internal(ctx, "mint verification token", err)
	}

	now := s.now()
	u := domain.User{
		ID:                     idx.NewAt(now).String(),
		Email:                  email,
		PassphraseHash:         hash,
		EmailVerificationToken: &token,
		Status:                 domain.StatusPendingVerification,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.PublicUser{}, ErrAlreadyExists
		}
		return domain.PublicUser{}, internal(ctx, "create user", err)
	}
	l.Info("user registered", slog.String("user_id", u.ID))

	if err := s.Mail.Deliver(ctx, u.Email, mail.KindVerification, token); err != nil {
		l.Error("verification delivery failed", slog.String("user_id", u.ID), slog.Any("error", err))
		return u.Public(), ErrDeliveryFailed
	}
	return u.Public(), nil
}

// Login checks credentials and, when 2FA is on, the TOTP code, then issues a
// token pair. An unknown email and a wrong passphrase are indistinguishable.
func (s *IdentityService) Login(ctx context.Context, email, passphrase, totpCode string) (domain.TokenPair, error) {
	l := slogx.FromContext(ctx)

	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.Hasher.VerifyDummy(passphrase)
		return domain.TokenPair{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.TokenPair{}, internal(ctx, "load user", err)
	}

	now := s.now()
	if u.IsLocked(now) {
		l.Warn("login rejected: account locked", slog.String("user_id", u.ID))
		return domain.TokenPair{}, ErrRateLimitExceeded
	}

	if err := s.Hasher.Verify(passphrase, u.PassphraseHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			return domain.TokenPair{}, internal(ctx, "verify passphrase", err)
		}
		s.recordFailure(ctx, u.ID)
		return domain.TokenPair{}, ErrInvalidCredentials
	}

	if !u.Status.CanLogin() {
		l.Info("login rejected: account not usable", slog.String("user_id", u.ID), slog.String("status", string(u.Status)))
		return domain.TokenPair{}, ErrAuthenticationFailed
	}

	if u.TOTPEnabled {
		if totpCode == "" {
			return domain.TokenPair{}, ErrAuthenticationFailed
		}
		if !s.TOTP.VerifyCode(*u.TOTPSecret, totpCode) {
			s.recordFailure(ctx, u.ID)
			return domain.TokenPair{}, ErrInvalidCredentials
		}
	}

	_, err = s.Users.Modify(ctx, u.ID, func(u *domain.User) error {
		u.FailedLoginAttempts = 0
		u.LastLogin = &now
		return nil
	})
	if err != nil {
		return domain.TokenPair{}, internal(ctx, "record login", err)
	}

	pair, err := s.Tokens.IssuePair(u.ID)
	if err != nil {
		return domain.TokenPair{}, internal(ctx, "issue tokens", err)
	}
	l.Info("user logged in", slog.String("user_id", u.ID))
	return pair, nil
}

// recordFailure bumps the failed-login counter. A storage error is logged but
// does not change the caller's outcome.
func (s *IdentityService) recordFailure(ctx context.Context, id string) {
	u, err := s.Users.Modify(ctx, id, func(u *domain.User) error {
		u.FailedLoginAttempts++
		return nil
	})
	if err != nil {
		slogx.FromContext(ctx).Error("record failed login", slog.String("user_id", id), slog.Any("error", err))
		return
	}
	slogx.FromContext(ctx).Info("login failed",
		slog.String("user_id", id),
		slog.Int("failed_login_attempts", u.FailedLoginAttempts),
	)
}

// Refresh exchanges a valid refresh token for a new token pair. The consumed
// token stays valid until it expires.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	userID, err := s.Tokens.Verify(refreshToken, jwtx.KindRefresh)
	if err != nil {
		slogx.FromContext(ctx).Debug("refresh rejected", slog.Any("error", err))
		return domain.TokenPair{}, ErrInvalidToken
	}

	pair, err := s.Tokens.IssuePair(userID)
	if err != nil {
		return domain.TokenPair{}, internal(ctx, "issue tokens", err)
	}
	return pair, nil
}

// Me returns the public view of the user behind an access token.
func (s *IdentityService) Me(ctx context.Context, userID string) (domain.PublicUser, error) {
	u, err := s.Users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PublicUser{}, ErrNotFound
	}
	if err != nil {
		return domain.PublicUser{}, internal(ctx, "load user", err)
	}
	return u.Public(), nil
}

// VerifyEmail activates the account holding token. Verifying an already
// verified account is a no-op.
func (s *IdentityService) VerifyEmail(ctx context.Context, token string) error {
	if err := s.Tokens.VerifyOpaque(token, PurposeVerification); err != nil {
		return ErrInvalidToken
	}

	u, err := s.Users.GetByVerificationToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return internal(ctx, "load user", err)
	}
	if u.EmailVerified {
		return nil
	}

	_, err = s.Users.Modify(ctx, u.ID, func(u *domain.User) error {
		if u.EmailVerified {
			return nil
		}
		if u.EmailVerificationToken == nil || *u.EmailVerificationToken != token {
			return ErrInvalidToken
		}
		u.EmailVerified = true
		u.EmailVerificationToken = nil
		if u.Status == domain.StatusPendingVerification {
			u.Status = domain.StatusActive
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrInvalidToken):
		return ErrInvalidToken
	case err != nil:
		return internal(ctx, "verify email", err)
	}
	slogx.FromContext(ctx).Info("email verified", slog.String("user_id", u.ID))
	return nil
}

// ResendVerification re-mints the verification token for an unverified
// account and delivers it. Verified accounts are left alone.
func (s *IdentityService) ResendVerification(ctx context.Context, email string) error {
	u, err := s.Users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return internal(ctx, "load user", err)
	}
	if u.EmailVerified {
		return nil
	}

	token, err := s.Tokens.SignOpaque(PurposeVerification)
	if err != nil {
		return internal(ctx, "mint verification token", err)
	}

	u, err = s.Users.Modify(ctx, u.ID, func(u *domain.User) error {
		if u.EmailVerified {
			return errVerified
		}
		u.EmailVerificationToken = &token
		return nil
	})
	if errors.Is(err, errVerified) {
		return nil
	}
	if err != nil {
		return internal(ctx, "store verification token", err)
	}

	if err := s.Mail.Deliver(ctx, u.Email, mail.KindVerification, token); err != nil {
		slogx.FromContext(ctx).Error("verification delivery failed", slog.String("user_id", u.ID), slog.Any("error", err))
		return ErrDeliveryFailed
	}
	return nil
}
