package jwtx

import (
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/idx"
)

// KeyManager ties a single active signer to the key set and verifier that
// accept its tokens. The key set may hold more keys than the signer (older
// persisted keys stay valid for verification).
type KeyManager struct {
	Signer   Signer
	Verifier Verifier
	KeySet   *KeySet
}

// KeyManagerOptions configures an ephemeral KeyManager.
type KeyManagerOptions struct {
	// Issuer is written to and required in every token.
	Issuer string

	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// NewEphemeralKeyManager generates a fresh Ed25519 key that only lives in
// memory. Every token becomes invalid when the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}

	pemData, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, fmt.Errorf("jwtx: generate key: %w", err)
	}
	signer, err := NewSignerEdDSA(newKeyID(), pemData)
	if err != nil {
		return nil, err
	}

	keyset := NewKeySet()
	if err := keyset.AddSigner(signer); err != nil {
		return nil, fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}

	return &KeyManager{
		Signer:   signer,
		Verifier: NewVerifierEdDSA(keyset, opts.Issuer, opts.Now),
		KeySet:   keyset,
	}, nil
}

func (km *KeyManager) IsReady() bool {
	return km.Signer != nil && km.KeySet.IsReady()
}

// newKeyID returns a sortable key identifier, e.g. "key-01j9...".
func newKeyID() string {
	return "key-" + strings.ToLower(idx.New().String())
}
