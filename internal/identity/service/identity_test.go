package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/internal/identity/mail"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

func TestRegisterThenLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	u, err := h.svc.Register(ctx, testEmail, strongPass)
	require.NoError(t, err)
	require.Equal(t, testEmail, u.Email)
	require.Equal(t, domain.StatusPendingVerification, u.Status)
	require.False(t, u.EmailVerified)

	sent := h.mail.last(t, mail.KindVerification)
	require.Equal(t, testEmail, sent.To)
	require.NotEmpty(t, sent.Token)

	pair, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.NoError(t, err)
	require.Equal(t, "Bearer", pair.TokenType)
	require.Equal(t, 900, pair.ExpiresIn)

	sub, err := h.svc.Tokens.Verify(pair.AccessToken, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, u.ID, sub)

	stored, err := h.users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)
	require.Equal(t, h.clock.Now(), *stored.LastLogin)
	require.NotEqual(t, strongPass, stored.PassphraseHash)
}

func TestRegisterFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	t.Run("weak passphrase", func(t *testing.T) {
		_, err := h.svc.Register(ctx, "weak@example.com", weakPass)
		require.ErrorIs(t, err, ErrWeakPassphrase)

		var wpe *WeakPassphraseError
		require.ErrorAs(t, err, &wpe)
		require.Equal(t, reasonWeakRegister, wpe.Reason)

		_, err = h.users.GetByEmail(ctx, "weak@example.com")
		require.Error(t, err)
	})

	t.Run("passphrase built from the email", func(t *testing.T) {
		_, err := h.svc.Register(ctx, "correcthorse@example.com", "correcthorse@example.com")
		require.ErrorIs(t, err, ErrWeakPassphrase)
	})

	t.Run("overlong passphrase", func(t *testing.T) {
		_, err := h.svc.Register(ctx, "long@example.com", strings.Repeat("aB3$xY7!", 1000))
		var wpe *WeakPassphraseError
		require.ErrorAs(t, err, &wpe)
		require.Equal(t, reasonTooLong, wpe.Reason)

		_, err = h.users.GetByEmail(ctx, "long@example.com")
		require.Error(t, err)
	})

	t.Run("duplicate email", func(t *testing.T) {
		first, err := h.svc.Register(ctx, "dup@example.com", strongPass)
		require.NoError(t, err)

		_, err = h.svc.Register(ctx, "dup@example.com", otherStrong)
		require.ErrorIs(t, err, ErrAlreadyExists)

		got, err := h.users.GetByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	})

	t.Run("delivery failure keeps the account", func(t *testing.T) {
		h := newHarness(t)
		h.mail.fail(errSMTPDown)

		u, err := h.svc.Register(ctx, "nomail@example.com", strongPass)
		require.ErrorIs(t, err, ErrDeliveryFailed)
		require.NotEmpty(t, u.ID)

		_, err = h.users.GetByEmail(ctx, "nomail@example.com")
		require.NoError(t, err)
	})
}

func TestLoginFailures(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)

	t.Run("unknown email", func(t *testing.T) {
		_, err := h.svc.Login(ctx, "nobody@example.com", strongPass, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email costs a hash", func(t *testing.T) {
		fastest := func(email string) time.Duration {
			best := time.Duration(1<<63 - 1)
			for i := 0; i < 3; i++ {
				start := time.Now()
				_, err := h.svc.Login(ctx, email, "not the passphrase at all", "")
				require.ErrorIs(t, err, ErrInvalidCredentials)
				best = min(best, time.Since(start))
			}
			return best
		}

		h.register(t, "timing@example.com")
		wrong := fastest("timing@example.com")
		unknown := fastest("nobody@example.com")
		require.Greater(t, unknown, wrong/4, "unknown=%s wrong=%s", unknown, wrong)
	})

	t.Run("wrong passphrase counts", func(t *testing.T) {
		_, err := h.svc.Login(ctx, testEmail, otherStrong, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		u, err := h.users.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, 1, u.FailedLoginAttempts)
	})

	t.Run("success resets the counter", func(t *testing.T) {
		_, err := h.svc.Login(ctx, testEmail, strongPass, "")
		require.NoError(t, err)

		u, err := h.users.GetByID(ctx, id)
		require.NoError(t, err)
		require.Zero(t, u.FailedLoginAttempts)
	})
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, testEmail)

	_, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.NoError(t, err)

	for i := 0; i < domain.MaxFailedLogins; i++ {
		_, err := h.svc.Login(ctx, testEmail, otherStrong, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = h.svc.Login(ctx, testEmail, strongPass, "")
	require.ErrorIs(t, err, ErrRateLimitExceeded)

	h.clock.Advance(domain.LockoutWindow)
	_, err = h.svc.Login(ctx, testEmail, strongPass, "")
	require.NoError(t, err, "window anchored on last login has passed")
}

func TestLoginLockoutNeverLoggedIn(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, testEmail)

	for i := 0; i < domain.MaxFailedLogins; i++ {
		_, err := h.svc.Login(ctx, testEmail, otherStrong, "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	h.clock.Advance(48 * time.Hour)
	_, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.ErrorIs(t, err, ErrRateLimitExceeded)
}

func TestLoginConcurrentFailuresAreCounted(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.svc.Login(ctx, testEmail, otherStrong, "")
		}()
	}
	wg.Wait()

	u, err := h.users.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, n, u.FailedLoginAttempts)
}

func TestLoginRejectsDisabledAccounts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	for _, status := range []domain.Status{domain.StatusSuspended, domain.StatusInactive} {
		t.Run(string(status), func(t *testing.T) {
			email := string(status) + "@example.com"
			id := h.registerVerified(t, email)
			_, err := h.users.Modify(ctx, id, func(u *domain.User) error {
				u.Status = status
				return nil
			})
			require.NoError(t, err)

			_, err = h.svc.Login(ctx, email, strongPass, "")
			require.ErrorIs(t, err, ErrAuthenticationFailed)

			_, err = h.svc.Login(ctx, email, otherStrong, "")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestLoginWithTOTP(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)
	secret := h.enableTOTP(t, id)

	_, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = h.svc.Login(ctx, testEmail, strongPass, wrongCode(h.code(t, secret, 0)))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = h.svc.Login(ctx, testEmail, otherStrong, h.code(t, secret, 0))
	require.ErrorIs(t, err, ErrInvalidCredentials)

	pair, err := h.svc.Login(ctx, testEmail, strongPass, h.code(t, secret, 0))
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)

	pair, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.NoError(t, err)

	t.Run("refresh token issues a new pair", func(t *testing.T) {
		next, err := h.svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		sub, err := h.svc.Tokens.Verify(next.AccessToken, jwtx.KindAccess)
		require.NoError(t, err)
		require.Equal(t, id, sub)
	})

	t.Run("access token is rejected", func(t *testing.T) {
		_, err := h.svc.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := h.svc.Refresh(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRefreshExpired(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, testEmail)

	pair, err := h.svc.Login(ctx, testEmail, strongPass, "")
	require.NoError(t, err)

	h.clock.Advance(jwtx.RefreshTokenTTL + time.Minute)
	_, err = h.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmail(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)
	token := h.mail.last(t, mail.KindVerification).Token

	require.NoError(t, h.svc.VerifyEmail(ctx, token))

	u, err := h.users.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, u.EmailVerified)
	require.Equal(t, domain.StatusActive, u.Status)
	require.Nil(t, u.EmailVerificationToken)

	// Following the link again is a no-op.
	require.NoError(t, h.svc.VerifyEmail(ctx, token))
	again, err := h.users.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, u.UpdatedAt, again.UpdatedAt, "nothing rewritten")

	require.ErrorIs(t, h.svc.VerifyEmail(ctx, "bogus"), ErrInvalidToken)

	minted, err := h.svc.Tokens.SignOpaque(PurposeVerification)
	require.NoError(t, err)
	require.ErrorIs(t, h.svc.VerifyEmail(ctx, minted), ErrInvalidToken, "signed but never issued")
}

func TestResendVerification(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, testEmail)
	first := h.mail.last(t, mail.KindVerification).Token

	require.NoError(t, h.svc.ResendVerification(ctx, testEmail))
	second := h.mail.last(t, mail.KindVerification).Token
	require.NotEqual(t, first, second)

	require.ErrorIs(t, h.svc.VerifyEmail(ctx, first), ErrInvalidToken)
	require.NoError(t, h.svc.VerifyEmail(ctx, second))

	require.NoError(t, h.svc.ResendVerification(ctx, testEmail), "verified accounts are a no-op")
	require.Equal(t, second, h.mail.last(t, mail.KindVerification).Token)

	require.ErrorIs(t, h.svc.ResendVerification(ctx, "nobody@example.com"), ErrNotFound)
}

func TestMe(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	id := h.register(t, testEmail)

	u, err := h.svc.Me(ctx, id)
	require.NoError(t, err)
	require.Equal(t, testEmail, u.Email)
	require.False(t, u.TOTPEnabled)

	_, err = h.svc.Me(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
