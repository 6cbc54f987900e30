package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a transaction could not commit because of
	// concurrent writers and retries were exhausted.
	ErrConflict = errors.New("store: transaction conflict")
)

// Record is a single key/value pair returned by Scan.
type Record struct {
	Key   string
	Value []byte
}

// Tx is the view of the store inside one transaction. Reads observe a single
// consistent snapshot; writes become visible to others only on commit.
type Tx interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// Delete is a no-op for absent keys.
	Delete(ctx context.Context, key string) error

	// Scan returns up to limit records whose key starts with prefix and sorts
	// after the given key, in ascending key order. A limit <= 0 means no limit.
	Scan(ctx context.Context, prefix, after string, limit int) ([]Record, error)
}

// Store is the transactional key/value store every repository is built on.
// Concrete drivers (sqlite, redis) implement it.
type Store interface {
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(tx Tx) error) error

	// WithTx runs fn in a read/write transaction. If fn returns an error
	// nothing is written; otherwise every write commits atomically. Drivers
	// with optimistic concurrency may call fn more than once.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	ApplyMigrations() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}
