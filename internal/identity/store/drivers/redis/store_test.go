package redis_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
	"github.com/aussiebroadwan/selfie/internal/identity/store/drivers/redis"
	"github.com/aussiebroadwan/selfie/internal/identity/store/storetest"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		_, client := newMiniredis(t)
		return redis.New(client, "selfie:")
	})
}

func TestKeysAreNamespaced(t *testing.T) {
	mr, client := newMiniredis(t)
	s := redis.New(client, "selfie:")
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Set(ctx, "user:1", []byte("x"))
	}))

	got, err := mr.Get("selfie:user:1")
	require.NoError(t, err)
	require.Equal(t, "x", got)
	require.False(t, mr.Exists("user:1"))

	// Another namespace on the same server does not see the record.
	other := redis.New(client, "other:")
	err = other.View(ctx, func(tx store.Tx) error {
		recs, err := tx.Scan(ctx, "user:", "", 0)
		require.Empty(t, recs)
		return err
	})
	require.NoError(t, err)
}

func TestConflictingWriterCausesRetry(t *testing.T) {
	mr, client := newMiniredis(t)
	s := redis.New(client, "")
	ctx := context.Background()
	require.NoError(t, mr.Set("counter", "0"))

	attempts := 0
	err := s.WithTx(ctx, func(tx store.Tx) error {
		attempts++
		v, err := tx.Get(ctx, "counter")
		if err != nil {
			return err
		}
		if attempts == 1 {
			// A write from outside the transaction invalidates the WATCH.
			require.NoError(t, client.Set(ctx, "counter", "10", 0).Err())
		}
		return tx.Set(ctx, "counter", append(v, '!'))
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	got, err := mr.Get("counter")
	require.NoError(t, err)
	require.Equal(t, "10!", got)
}

func TestRetriesExhausted(t *testing.T) {
	_, client := newMiniredis(t)
	s := redis.New(client, "")
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Get(ctx, "hot"); err != nil && err != store.ErrNotFound {
			return err
		}
		if err := client.Incr(ctx, "hot").Err(); err != nil {
			return err
		}
		return tx.Set(ctx, "hot", []byte("mine"))
	})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestPingAndMigrations(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	s := redis.New(client, "")
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))

	mr.Close()
	require.Error(t, s.Ping(context.Background()))
}
