// Package storetest is a conformance suite every store.Store driver runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
)

// Run exercises s through the store.Store contract. s must be empty.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		err := s.View(context.Background(), func(tx store.Tx) error {
			_, err := tx.Get(context.Background(), "nope")
			return err
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit and read back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Set(ctx, "user:1", []byte("one")); err != nil {
				return err
			}
			// Reads inside the transaction see its own writes.
			v, err := tx.Get(ctx, "user:1")
			if err != nil {
				return err
			}
			if string(v) != "one" {
				return fmt.Errorf("read own write: got %q", v)
			}
			return nil
		}))

		require.Equal(t, "one", string(mustGet(t, s, "user:1")))
	})

	t.Run("error rolls back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		boom := errors.New("boom")

		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Set(ctx, "user:1", []byte("one")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		err = s.View(ctx, func(tx store.Tx) error {
			_, err := tx.Get(ctx, "user:1")
			return err
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		set(t, s, "k", "v")

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Delete(ctx, "k"); err != nil {
				return err
			}
			_, err := tx.Get(ctx, "k")
			if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("deleted key still visible: %v", err)
			}
			return tx.Delete(ctx, "absent")
		}))

		err := s.View(ctx, func(tx store.Tx) error {
			_, err := tx.Get(ctx, "k")
			return err
		})
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("view rejects writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.View(ctx, func(tx store.Tx) error {
			return tx.Set(ctx, "k", []byte("v"))
		})
		require.Error(t, err)
	})

	t.Run("scan by prefix in order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, k := range []string{"reset:c", "reset:a", "verify:a", "reset:b", "user:1", "reset*x"} {
			set(t, s, k, k)
		}

		var keys []string
		require.NoError(t, s.View(ctx, func(tx store.Tx) error {
			recs, err := tx.Scan(ctx, "reset:", "", 0)
			for _, r := range recs {
				keys = append(keys, r.Key)
				if string(r.Value) != r.Key {
					return fmt.Errorf("value mismatch for %s", r.Key)
				}
			}
			return err
		}))
		require.Equal(t, []string{"reset:a", "reset:b", "reset:c"}, keys)

		var page []string
		require.NoError(t, s.View(ctx, func(tx store.Tx) error {
			recs, err := tx.Scan(ctx, "reset:", "reset:a", 1)
			for _, r := range recs {
				page = append(page, r.Key)
			}
			return err
		}))
		require.Equal(t, []string{"reset:b"}, page)
	})

	t.Run("scan sees pending writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		set(t, s, "p:1", "1")
		set(t, s, "p:2", "2")

		require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Delete(ctx, "p:1"); err != nil {
				return err
			}
			if err := tx.Set(ctx, "p:3", []byte("3")); err != nil {
				return err
			}
			recs, err := tx.Scan(ctx, "p:", "", 0)
			if err != nil {
				return err
			}
			if len(recs) != 2 || recs[0].Key != "p:2" || recs[1].Key != "p:3" {
				return fmt.Errorf("unexpected scan: %+v", recs)
			}
			return nil
		}))
	})

	t.Run("concurrent increments do not lose updates", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		set(t, s, "counter", "0")

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.WithTx(ctx, func(tx store.Tx) error {
					v, err := tx.Get(ctx, "counter")
					if err != nil {
						return err
					}
					var n int
					if _, err := fmt.Sscanf(string(v), "%d", &n); err != nil {
						return err
					}
					return tx.Set(ctx, "counter", []byte(fmt.Sprint(n+1)))
				})
			}()
		}
		wg.Wait()
		close(errs)

		committed := 0
		for err := range errs {
			if err == nil {
				committed++
				continue
			}
			require.ErrorIs(t, err, store.ErrConflict)
		}
		require.Equal(t, fmt.Sprint(committed), string(mustGet(t, s, "counter")))
	})
}

func set(t *testing.T, s store.Store, key, value string) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), func(tx store.Tx) error {
		return tx.Set(context.Background(), key, []byte(value))
	}))
}

func mustGet(t *testing.T, s store.Store, key string) []byte {
	t.Helper()
	var v []byte
	require.NoError(t, s.View(context.Background(), func(tx store.Tx) error {
		var err error
		v, err = tx.Get(context.Background(), key)
		return err
	}))
	return v
}
