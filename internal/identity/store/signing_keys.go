package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/selfie/internal/identity/domain"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

// SigningKeys persists token signing keys under signing_key:{kid} and
// implements jwtx.KeyStore.
type SigningKeys struct {
	Store Store
}

var _ jwtx.KeyStore = (*SigningKeys)(nil)

func NewSigningKeys(s Store) *SigningKeys {
	return &SigningKeys{Store: s}
}

// ListSigningKeys returns every stored key, retired ones included.
func (r *SigningKeys) ListSigningKeys(ctx context.Context) ([]jwtx.SigningKeyRecord, error) {
	var out []jwtx.SigningKeyRecord
	err := r.Store.View(ctx, func(tx Tx) error {
		records, err := tx.Scan(ctx, prefixSigningKey, "", 0)
		if err != nil {
			return err
		}
		out = make([]jwtx.SigningKeyRecord, 0, len(records))
		for _, rec := range records {
			var k domain.SigningKey
			if err := json.Unmarshal(rec.Value, &k); err != nil {
				return fmt.Errorf("store: decode %s: %w", rec.Key, err)
			}
			out = append(out, toRecord(k))
		}
		return nil
	})
	return out, err
}

// CreateSigningKey stores key. It fails with ErrAlreadyExists if the kid is
// taken and with jwtx.ErrActiveKeyExists if a non-retired key is already
// stored, so replicas starting together agree on one key.
func (r *SigningKeys) CreateSigningKey(ctx context.Context, key jwtx.SigningKeyRecord) error {
	raw, err := json.Marshal(fromRecord(key))
	if err != nil {
		return err
	}

	return r.Store.WithTx(ctx, func(tx Tx) error {
		if _, err := tx.Get(ctx, signingKeyKey(key.Kid)); err == nil {
			return ErrAlreadyExists
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if _, err := tx.Get(ctx, signingKeyHead); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		records, err := tx.Scan(ctx, prefixSigningKey, "", 0)
		if err != nil {
			return err
		}
		for _, rec := range records {
			var k domain.SigningKey
			if err := json.Unmarshal(rec.Value, &k); err != nil {
				return fmt.Errorf("store: decode %s: %w", rec.Key, err)
			}
			if k.IsActive() {
				return jwtx.ErrActiveKeyExists
			}
		}

		if err := tx.Set(ctx, signingKeyKey(key.Kid), raw); err != nil {
			return err
		}
		return tx.Set(ctx, signingKeyHead, []byte(key.Kid))
	})
}

func toRecord(k domain.SigningKey) jwtx.SigningKeyRecord {
	return jwtx.SigningKeyRecord{
		Kid:                 k.Kid,
		Algorithm:           k.Algorithm,
		PrivateKeyEncrypted: k.PrivateKeyEncrypted,
		CreatedAt:           k.CreatedAt,
		RetiredAt:           k.RetiredAt,
	}
}

func fromRecord(r jwtx.SigningKeyRecord) domain.SigningKey {
	return domain.SigningKey{
		Kid:                 r.Kid,
		Algorithm:           r.Algorithm,
		PrivateKeyEncrypted: r.PrivateKeyEncrypted,
		CreatedAt:           r.CreatedAt,
		RetiredAt:           r.RetiredAt,
	}
}
