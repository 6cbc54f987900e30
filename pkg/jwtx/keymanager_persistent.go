package jwtx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aussiebroadwan/selfie/pkg/cryptox"
)

// SigningKeyRecord is a persisted signing key. The private key is a PKCS8 PEM
// sealed with the master key cipher.
type SigningKeyRecord struct {
	Kid                 string     `json:"kid"`
	Algorithm           string     `json:"algorithm"`
	PrivateKeyEncrypted []byte     `json:"private_key_encrypted"`
	CreatedAt           time.Time  `json:"created_at"`
	RetiredAt           *time.Time `json:"retired_at,omitempty"`
}

// ErrActiveKeyExists is returned by KeyStore.CreateSigningKey when another
// non-retired key is already stored.
var ErrActiveKeyExists = errors.New("jwtx: an active signing key already exists")

// KeyStore is the persistence the KeyManager needs. It is declared here so
// jwtx does not depend on the store package.
type KeyStore interface {
	// ListSigningKeys returns every stored key, retired ones included.
	ListSigningKeys(ctx context.Context) ([]SigningKeyRecord, error)

	// CreateSigningKey stores a new key. It fails if the kid already exists,
	// and with ErrActiveKeyExists if a non-retired key is already stored.
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// PersistentKeyManagerOptions configures a KeyManager backed by a KeyStore.
type PersistentKeyManagerOptions struct {
	Store  KeyStore
	Cipher *cryptox.KeyCipher
	Issuer string
	Now    func() time.Time
}

// NewPersistentKeyManager loads every stored key into the key set and signs
// with the newest non-retired one. A key is generated and stored only when
// none is active; if another process stores one first, that key is loaded
// instead. A key that fails to decrypt is an error; it is never replaced,
// because replacing it would invalidate every token it signed.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil {
		return nil, errors.New("jwtx: Store is required for persistent key manager")
	}
	if opts.Cipher == nil {
		return nil, errors.New("jwtx: Cipher is required for persistent key manager")
	}
	if opts.Issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	keyset, active, err := loadKeys(ctx, opts)
	if err != nil {
		return nil, err
	}

	if active == nil {
		signer, err := createKey(ctx, opts, now().UTC())
		switch {
		case errors.Is(err, ErrActiveKeyExists):
			keyset, active, err = loadKeys(ctx, opts)
			if err != nil {
				return nil, err
			}
			if active == nil {
				return nil, errors.New("jwtx: active signing key vanished after create conflict")
			}
		case err != nil:
			return nil, err
		default:
			if err := keyset.AddSigner(signer); err != nil {
				return nil, fmt.Errorf("jwtx: add new key to keyset: %w", err)
			}
			active = signer
		}
	}

	return &KeyManager{
		Signer:   active,
		Verifier: NewVerifierEdDSA(keyset, opts.Issuer, opts.Now),
		KeySet:   keyset,
	}, nil
}

// loadKeys decrypts every stored key into a fresh key set. active is the
// newest non-retired key, or nil.
func loadKeys(ctx context.Context, opts PersistentKeyManagerOptions) (*KeySet, Signer, error) {
	records, err := opts.Store.ListSigningKeys(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("jwtx: load signing keys: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	keyset := NewKeySet()
	var active Signer
	for _, rec := range records {
		if rec.Algorithm != AlgorithmEdDSA {
			return nil, nil, fmt.Errorf("jwtx: key %s: unsupported algorithm %q", rec.Kid, rec.Algorithm)
		}
		pemData, err := opts.Cipher.Open(rec.PrivateKeyEncrypted)
		if err != nil {
			return nil, nil, fmt.Errorf("jwtx: decrypt key %s: %w", rec.Kid, err)
		}
		signer, err := NewSignerEdDSA(rec.Kid, pemData)
		if err != nil {
			return nil, nil, fmt.Errorf("jwtx: key %s: %w", rec.Kid, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, nil, fmt.Errorf("jwtx: add key %s to keyset: %w", rec.Kid, err)
		}
		if rec.RetiredAt == nil {
			active = signer
		}
	}
	return keyset, active, nil
}

// createKey generates, seals and stores a new key.
func createKey(ctx context.Context, opts PersistentKeyManagerOptions, createdAt time.Time) (Signer, error) {
	pemData, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key: %w", err)
	}
	sealed, err := opts.Cipher.Seal(pemData)
	if err != nil {
		return nil, fmt.Errorf("jwtx: encrypt key: %w", err)
	}
	signer, err := NewSignerEdDSA(newKeyID(), pemData)
	if err != nil {
		return nil, err
	}

	rec := SigningKeyRecord{
		Kid:                 signer.KID(),
		Algorithm:           AlgorithmEdDSA,
		PrivateKeyEncrypted: sealed,
		CreatedAt:           createdAt,
	}
	if err := opts.Store.CreateSigningKey(ctx, rec); err != nil {
		if errors.Is(err, ErrActiveKeyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("jwtx: store new key: %w", err)
	}
	return signer, nil
}
