package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/pkg/cryptox"
	"github.com/aussiebroadwan/selfie/pkg/jwtx"
)

// InitKeys creates the KeyManager for the configured storage mode.
//
// Storage modes:
//   - "ephemeral": a key is generated on startup and kept only in memory.
//     All existing tokens become invalid when the service restarts.
//   - "persistent": keys are sealed with the master key and stored, so tokens
//     survive restarts. A key is generated only when none is active.
func InitKeys(ctx context.Context, cfg Config, db store.Store, logger *slog.Logger) (*jwtx.KeyManager, error) {
	switch cfg.KeyStorageMode {
	case KeyStoragePersistent:
		cipher, err := cryptox.LoadKeyCipher(cfg.MasterKeyPath, cfg.MasterKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load master key: %w", err)
		}

		logger.Info("initializing persistent key manager", "issuer", cfg.Issuer)

		km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			Store:  store.NewSigningKeys(db),
			Cipher: cipher,
			Issuer: cfg.Issuer,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

		logger.Info("persistent signing keys loaded",
			"active_kid", km.Signer.KID(),
			"num_keys", len(km.KeySet.PublicJWKS().Keys),
		)
		return km, nil

	default:
		km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{Issuer: cfg.Issuer})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}

		logger.Info("generated ephemeral signing key", "kid", km.Signer.KID())
		logger.Warn("all existing tokens are now invalid due to key rotation on startup")
		return km, nil
	}
}
