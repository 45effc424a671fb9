package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"minder/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// pgxPool is the subset of *pgxpool.Pool the store uses.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DB is the Postgres-backed Store.
type DB struct {
	pool  pgxPool
	table string
}

func New(config config.Database) (*DB, error) {
	// Create a configuration object
	cfg, err := pgxpool.ParseConfig(config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Configure connection pool and statement cache
	cfg.MaxConns = config.MaxConns
	cfg.MinConns = config.MinConns
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	return NewWithPool(pool, config.Table), nil
}

// NewWithPool wraps an existing pool; table defaults to kv_entries.
func NewWithPool(pool pgxPool, table string) *DB {
	if table == "" {
		table = "kv_entries"
	}
	return &DB{pool: pool, table: table}
}

// sql fills the quoted table name into a query template.
func (db *DB) sql(query string) string {
	return strings.ReplaceAll(query, "{table}", pq.QuoteIdentifier(db.table))
}

// Get returns the raw value stored under namespace/key
func (db *DB) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	query := db.sql(`SELECT value FROM {table} WHERE namespace = $1 AND key = $2`)

	var value []byte
	err := db.pool.QueryRow(ctx, query, namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s/%s", namespace, key)
	}
	return value, nil
}

// Set inserts or replaces the value under namespace/key
func (db *DB) Set(ctx context.Context, namespace, key string, value []byte) error {
	query := db.sql(`
		INSERT INTO {table} (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`)

	_, err := db.pool.Exec(ctx, query, namespace, key, value)
	return errors.Wrapf(err, "set %s/%s", namespace, key)
}

func (db *DB) SetIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error) {
	query := db.sql(`
		INSERT INTO {table} (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO NOTHING`)

	tag, err := db.pool.Exec(ctx, query, namespace, key, value)
	if err != nil {
		return false, errors.Wrapf(err, "insert %s/%s", namespace, key)
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) CompareAndSwap(ctx context.Context, namespace, key string, old, value []byte) (bool, error) {
	query := db.sql(`
		UPDATE {table} SET value = $3, updated_at = now()
		WHERE namespace = $1 AND key = $2 AND value = $4`)

	tag, err := db.pool.Exec(ctx, query, namespace, key, value, old)
	if err != nil {
		return false, errors.Wrapf(err, "compare-and-swap %s/%s", namespace, key)
	}
	return tag.RowsAffected() == 1, nil
}

// ListKeys returns every key in namespace, sorted
func (db *DB) ListKeys(ctx context.Context, namespace string) ([]string, error) {
	query := db.sql(`SELECT key FROM {table} WHERE namespace = $1 ORDER BY key`)

	rows, err := db.pool.Query(ctx, query, namespace)
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

func (db *DB) Delete(ctx context.Context, namespace, key string) (bool, error) {
	query := db.sql(`DELETE FROM {table} WHERE namespace = $1 AND key = $2`)

	tag, err := db.pool.Exec(ctx, query, namespace, key)
	if err != nil {
		return false, errors.Wrapf(err, "delete %s/%s", namespace, key)
	}
	return tag.RowsAffected() == 1, nil
}

// Migrate applies the embedded Postgres schema.
func (db *DB) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, "postgres", db.table, func(ctx context.Context, stmt string) error {
		_, err := db.pool.Exec(ctx, stmt)
		return err
	})
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}
