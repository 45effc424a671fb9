// Package db provides the namespaced key-value store every subsystem persists through.
package db

import (
	"context"

	"minder/internal/config"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("db: key not found")

// Store is a key-value store partitioned by namespace. Values are opaque bytes.
type Store interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	// SetIfAbsent stores value only when key is unused and reports whether it did.
	SetIfAbsent(ctx context.Context, namespace, key string, value []byte) (bool, error)
	// CompareAndSwap replaces the value only if it still equals old.
	CompareAndSwap(ctx context.Context, namespace, key string, old, value []byte) (bool, error)
	// ListKeys returns the keys of a namespace in ascending order.
	ListKeys(ctx context.Context, namespace string) ([]string, error)
	Delete(ctx context.Context, namespace, key string) (bool, error)
	Close() error
}

// Open returns the backend selected by cfg.Driver, with its schema applied where the
// backend owns one locally.
func Open(ctx context.Context, cfg config.Database) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return New(cfg)
	case "sqlite":
		return OpenSQLite(ctx, cfg.Path)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
