package db

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

//go:embed migrations
var migrations embed.FS

// applyMigrations runs every .sql file of the dialect directory in name order.
// Files must be idempotent; {table} is replaced with the quoted table name.
func applyMigrations(ctx context.Context, dialect, table string, exec func(context.Context, string) error) error {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return errors.Wrapf(err, "read %s migrations", dialect)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile(path.Join(dir, name))
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		stmt := strings.ReplaceAll(string(body), "{table}", pq.QuoteIdentifier(table))
		if err := exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply migration %s", name)
		}
	}
	return nil
}
