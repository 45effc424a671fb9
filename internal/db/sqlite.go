package db

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const sqliteTable = "kv_entries"

// SQLite is a single-file Store for small deployments.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// One writer keeps compare-and-swap free of SQLITE_BUSY races.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping sqlite %s", path)
	}

	s := &SQLite{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, "sqlite", sqliteTable, func(ctx context.Context, stmt string) error {
		_, err := s.db.ExecContext(ctx, stmt)
		return err
	})
}

func (s *SQLite) sql(query string) string {
	return strings.ReplaceAll(query, "{table}", pq.QuoteIdentifier(sqliteTable))
}

func (s *SQLite) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		s.sql(`SELECT value FROM {table} WHERE namespace = ? AND key = ?`),
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", namespace, key)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, namespace, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, s.sql(`
		INSERT INTO {table} (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`),
		namespace, key, value,
	)
	return errors.Wrapf(err, "set %s/%s", namespace, key)
}

func (s *SQLite) SetIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.sql(`
		INSERT INTO {table} (namespace, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (namespace, key) DO NOTHING`),
		namespace, key, value,
	)
	return affectedOne(res, err, "insert", namespace, key)
}

func (s *SQLite) CompareAndSwap(ctx context.Context, namespace, key string, old, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.sql(`
		UPDATE {table} SET value = ?, updated_at = CURRENT_TIMESTAMP
		WHERE namespace = ? AND key = ? AND value = ?`),
		value, namespace, key, old,
	)
	return affectedOne(res, err, "compare-and-swap", namespace, key)
}

func (s *SQLite) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.sql(`SELECT key FROM {table} WHERE namespace = ? ORDER BY key`), namespace)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", namespace)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrapf(err, "scan %s key", namespace)
		}
		keys = append(keys, key)
	}
	return keys, errors.Wrapf(rows.Err(), "list %s", namespace)
}

func (s *SQLite) Delete(ctx context.Context, namespace, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.sql(`DELETE FROM {table} WHERE namespace = ? AND key = ?`), namespace, key)
	return affectedOne(res, err, "delete", namespace, key)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func affectedOne(res sql.Result, err error, op, namespace, key string) (bool, error) {
	if err != nil {
		return false, errors.Wrapf(err, "%s %s/%s", op, namespace, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "%s %s/%s", op, namespace, key)
	}
	return n == 1, nil
}
