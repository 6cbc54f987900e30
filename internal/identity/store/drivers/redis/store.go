// Package redis implements store.Store on Redis with optimistic
// transactions: every key a transaction reads is WATCHed, writes are buffered
// and flushed in one MULTI/EXEC, and the transaction is retried when a
// watched key changed underneath it.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
)

// maxRetries bounds how often a conflicting transaction is re-run before
// store.ErrConflict is returned.
const maxRetries = 8

type Options struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces every key, e.g. "selfie:".
	Prefix string
}

type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return New(client, opts.Prefix), nil
}

// New wraps an existing client.
func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) Close() error { return s.client.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// ApplyMigrations is a no-op; records need no schema.
func (s *Store) ApplyMigrations() error { return nil }

// View runs fn with watched reads and discards the watch afterwards.
func (s *Store) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.client.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(s.newTx(rtx, true))
	})
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
			t := s.newTx(rtx, false)
			if err := fn(t); err != nil {
				return err
			}
			return t.commit(ctx)
		})

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return store.ErrConflict
}
