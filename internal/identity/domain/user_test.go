package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsLocked(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Minute)
	old := now.Add(-2 * time.Hour)

	tests := []struct {
		name      string
		attempts  int
		lastLogin *time.Time
		want      bool
	}{
		{"under threshold", 4, &recent, false},
		{"at threshold within window", 5, &recent, true},
		{"at threshold past window", 5, &old, false},
		{"never logged in", 5, nil, true},
		{"never logged in under threshold", 2, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{FailedLoginAttempts: tt.attempts, LastLogin: tt.lastLogin}
			require.Equal(t, tt.want, u.IsLocked(now))
		})
	}
}

func TestValidate(t *testing.T) {
	secret := "SECRET"
	token := "tok"
	exp := time.Now().Add(time.Hour)

	valid := func() User {
		return User{ID: "id", Email: "a@example.com", PassphraseHash: "h", Status: StatusPendingVerification}
	}

	tests := []struct {
		name    string
		mutate  func(u *User)
		wantErr bool
	}{
		{"valid", func(*User) {}, false},
		{"missing email", func(u *User) { u.Email = "" }, true},
		{"bad status", func(u *User) { u.Status = "banned" }, true},
		{"totp enabled without secret", func(u *User) { u.TOTPEnabled = true }, true},
		{"totp enabled with secret", func(u *User) { u.TOTPEnabled = true; u.TOTPSecret = &secret }, false},
		{"active unverified", func(u *User) { u.Status = StatusActive }, true},
		{"reset token without expiry", func(u *User) { u.PasswordResetToken = &token }, true},
		{"reset token with expiry", func(u *User) { u.PasswordResetToken = &token; u.PasswordResetExpires = &exp }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid()
			tt.mutate(&u)
			if tt.wantErr {
				require.Error(t, u.Validate())
			} else {
				require.NoError(t, u.Validate())
			}
		})
	}
}
