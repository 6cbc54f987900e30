package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
)

// Users maps domain.User onto the record store. The email, verification token
// and reset token indices are written in the same transaction as the user
// record they point at.
type Users struct {
	Store Store

	// Now stamps UpdatedAt. Defaults to time.Now.
	Now func() time.Time
}

func NewUsers(s Store) *Users {
	return &Users{Store: s, Now: time.Now}
}

func (r *Users) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// Create inserts a new user. It fails with ErrAlreadyExists when the email or
// id is taken; the check and the write share one transaction.
func (r *Users) Create(ctx context.Context, u domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}

	return r.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Get(ctx, emailKey(u.Email)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if _, err := tx.Get(ctx, userKey(u.ID)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return writeUser(ctx, tx, nil, &u)
	})
}

func (r *Users) GetByID(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.Store.View(ctx, func(tx Tx) error {
		var err error
		u, err = loadUser(ctx, tx, id)
		return err
	})
	return u, err
}

func (r *Users) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getByIndex(ctx, emailKey(email), func(u *domain.User) bool {
		return u.Email == email
	})
}

// GetByVerificationToken resolves a verification token. A token already
// used to verify the account still resolves to it.
func (r *Users) GetByVerificationToken(ctx context.Context, token string) (domain.User, error) {
	return r.getByIndex(ctx, verifyKey(token), func(u *domain.User) bool {
		return holdsVerification(u, token)
	})
}

func (r *Users) GetByResetToken(ctx context.Context, token string) (domain.User, error) {
	return r.getByIndex(ctx, resetKey(token), func(u *domain.User) bool {
		return holdsReset(u, token)
	})
}

// getByIndex resolves an index entry. An entry whose user no longer carries
// the indexed value is stale and reads as ErrNotFound.
func (r *Users) getByIndex(ctx context.Context, key string, current func(*domain.User) bool) (domain.User, error) {
	var u domain.User
	err := r.Store.View(ctx, func(tx Tx) error {
		id, err := tx.Get(ctx, key)
		if err != nil {
			return err
		}
		u, err = loadUser(ctx, tx, string(id))
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if !current(&u) {
			return ErrNotFound
		}
		return nil
	})
	return u, err
}

// Update overwrites the stored user with u. Index entries for an email or
// token that u no longer carries are removed in the same transaction.
func (r *Users) Update(ctx context.Context, u domain.User) error {
	u.UpdatedAt = r.now()
	if err := u.Validate(); err != nil {
		return err
	}

	return r.Store.WithTx(ctx, func(tx Tx) error {
		old, err := loadUser(ctx, tx, u.ID)
		if err != nil {
			return err
		}
		return writeUser(ctx, tx, &old, &u)
	})
}

// Modify applies fn to the stored user and writes the result, all inside one
// transaction. If fn returns an error nothing is written and that error is
// returned. fn may run more than once on drivers that retry conflicts.
func (r *Users) Modify(ctx context.Context, id string, fn func(u *domain.User) error) (domain.User, error) {
	var out domain.User
	err := r.Store.WithTx(ctx, func(tx Tx) error {
		old, err := loadUser(ctx, tx, id)
		if err != nil {
			return err
		}

		next := old
		if err := fn(&next); err != nil {
			return err
		}
		next.ID = old.ID
		next.UpdatedAt = r.now()
		if err := next.Validate(); err != nil {
			return err
		}
		if err := writeUser(ctx, tx, &old, &next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func loadUser(ctx context.Context, tx Tx, id string) (domain.User, error) {
	raw, err := tx.Get(ctx, userKey(id))
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return domain.User{}, fmt.Errorf("store: decode user %s: %w", id, err)
	}
	return u, nil
}

// writeUser stores next and reconciles its indices against old (nil on
// create).
func writeUser(ctx context.Context, tx Tx, old, next *domain.User) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("store: encode user %s: %w", next.ID, err)
	}

	if old == nil || old.Email != next.Email {
		if old != nil {
			if err := claimEmail(ctx, tx, next); err != nil {
				return err
			}
			if err := tx.Delete(ctx, emailKey(old.Email)); err != nil {
				return err
			}
		}
		if err := tx.Set(ctx, emailKey(next.Email), []byte(next.ID)); err != nil {
			return err
		}
	}

	if !consumedVerification(old, next) {
		if err := syncTokenIndex(ctx, tx, verifyKey, tokenOf(old, verificationToken), next.EmailVerificationToken, next.ID); err != nil {
			return err
		}
	}
	if err := syncTokenIndex(ctx, tx, resetKey, tokenOf(old, resetToken), next.PasswordResetToken, next.ID); err != nil {
		return err
	}

	return tx.Set(ctx, userKey(next.ID), raw)
}

// claimEmail fails when another user already owns next.Email.
func claimEmail(ctx context.Context, tx Tx, next *domain.User) error {
	owner, err := tx.Get(ctx, emailKey(next.Email))
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case string(owner) != next.ID:
		return ErrAlreadyExists
	}
	return nil
}

// consumedVerification reports whether next used up the verification token
// old carried. Its index entry is kept so the same link keeps resolving to
// the now verified account.
func consumedVerification(old, next *domain.User) bool {
	return old != nil && !old.EmailVerified && old.EmailVerificationToken != nil &&
		next.EmailVerified && next.EmailVerificationToken == nil
}

func holdsVerification(u *domain.User, token string) bool {
	if u.EmailVerificationToken == nil {
		return u.EmailVerified
	}
	return *u.EmailVerificationToken == token
}

func holdsReset(u *domain.User, token string) bool {
	return u.PasswordResetToken != nil && *u.PasswordResetToken == token
}

func verificationToken(u *domain.User) *string { return u.EmailVerificationToken }
func resetToken(u *domain.User) *string        { return u.PasswordResetToken }

func tokenOf(u *domain.User, field func(*domain.User) *string) *string {
	if u == nil {
		return nil
	}
	return field(u)
}

func syncTokenIndex(ctx context.Context, tx Tx, key func(string) string, old, next *string, id string) error {
	if old != nil && (next == nil || *old != *next) {
		if err := tx.Delete(ctx, key(*old)); err != nil {
			return err
		}
	}
	if next != nil && (old == nil || *old != *next) {
		return tx.Set(ctx, key(*next), []byte(id))
	}
	return nil
}

// TokenIndex names a token index that can be swept.
type TokenIndex string

const (
	VerificationIndex TokenIndex = prefixVerify
	ResetIndex        TokenIndex = prefixReset
)

// SweepResult reports one page of a sweep. Next is the cursor for the
// following page and is empty once the index is exhausted.
type SweepResult struct {
	Next    string
	Scanned int
	Removed int

	// Expired counts reset flows past their expiry. They are left in place
	// so the link keeps failing with a distinct expiry error until a new
	// reset or a completed one replaces it.
	Expired int
}

// SweepTokenIndex visits up to limit entries of index after the cursor and
// deletes those whose user is gone or no longer holds the token.
func (r *Users) SweepTokenIndex(ctx context.Context, index TokenIndex, after string, limit int, now time.Time) (SweepResult, error) {
	holds := holdsVerification
	if index == ResetIndex {
		holds = holdsReset
	}

	var res SweepResult
	err := r.Store.WithTx(ctx, func(tx Tx) error {
		res = SweepResult{}
		records, err := tx.Scan(ctx, string(index), after, limit)
		if err != nil {
			return err
		}

		for _, rec := range records {
			res.Scanned++
			token := strings.TrimPrefix(rec.Key, string(index))

			u, err := loadUser(ctx, tx, string(rec.Value))
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if errors.Is(err, ErrNotFound) || !holds(&u, token) {
				if err := tx.Delete(ctx, rec.Key); err != nil {
					return err
				}
				res.Removed++
				continue
			}

			if index == ResetIndex && u.PasswordResetExpires != nil && !now.Before(*u.PasswordResetExpires) {
				res.Expired++
			}
		}

		if limit > 0 && len(records) == limit {
			res.Next = records[len(records)-1].Key
		}
		return nil
	})
	return res, err
}
