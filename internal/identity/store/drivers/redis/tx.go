package redis

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
)

var errReadOnly = errors.New("redis: write in read-only transaction")

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 256

type tx struct {
	s        *Store
	rtx      *redis.Tx
	readOnly bool

	// writes buffers pending sets; a nil value is a delete.
	writes map[string][]byte
}

func (s *Store) newTx(rtx *redis.Tx, readOnly bool) *tx {
	return &tx{s: s, rtx: rtx, readOnly: readOnly, writes: make(map[string][]byte)}
}

func (t *tx) key(k string) string { return t.s.prefix + k }

func (t *tx) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		if v == nil {
			return nil, store.ErrNotFound
		}
		return append([]byte(nil), v...), nil
	}

	full := t.key(key)
	if err := t.rtx.Watch(ctx, full).Err(); err != nil {
		return nil, err
	}
	v, err := t.rtx.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	return v, err
}

func (t *tx) Set(_ context.Context, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *tx) Delete(_ context.Context, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	t.writes[key] = nil
	return nil
}

// Scan walks the keyspace with SCAN MATCH, then sorts. Keys it returns are
// watched; keys created by others after the walk are not.
func (t *tx) Scan(ctx context.Context, prefix, after string, limit int) ([]store.Record, error) {
	pattern := escapeGlob(t.key(prefix)) + "*"

	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := t.rtx.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			k = strings.TrimPrefix(k, t.s.prefix)
			if k > after {
				seen[k] = struct{}{}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	for k, v := range t.writes {
		if strings.HasPrefix(k, prefix) && k > after {
			if v == nil {
				delete(seen, k)
			} else {
				seen[k] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	out := make([]store.Record, 0, len(keys))
	for _, k := range keys {
		v, err := t.Get(ctx, k)
		if errors.Is(err, store.ErrNotFound) {
			continue // deleted between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		out = append(out, store.Record{Key: k, Value: v})
	}
	return out, nil
}

// commit flushes buffered writes in one MULTI/EXEC. It fails with
// redis.TxFailedErr when a watched key changed.
func (t *tx) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}
	_, err := t.rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range t.writes {
			if v == nil {
				pipe.Del(ctx, t.key(k))
			} else {
				pipe.Set(ctx, t.key(k), v, 0)
			}
		}
		return nil
	})
	return err
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
