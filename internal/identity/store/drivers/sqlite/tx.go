package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/selfie/internal/identity/store"
)

var errReadOnly = errors.New("sqlite: write in read-only transaction")

type tx struct {
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(ctx, `SELECT value FROM records WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return value, nil
}

func (t *tx) Set(ctx context.Context, key string, value []byte) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO records (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	return err
}

func (t *tx) Delete(ctx context.Context, key string) error {
	if t.readOnly {
		return errReadOnly
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, key)
	return err
}

func (t *tx) Scan(ctx context.Context, prefix, after string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = -1 // no limit in SQLite
	}

	query := `SELECT key, value FROM records WHERE key >= ? AND key > ?`
	args := []any{prefix, after}
	if upper := store.PrefixUpperBound(prefix); upper != "" {
		query += ` AND key < ?`
		args = append(args, upper)
	}
	query += ` ORDER BY key LIMIT ?`
	args = append(args, limit)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
