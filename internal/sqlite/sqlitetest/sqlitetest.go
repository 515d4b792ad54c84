// Package sqlitetest provides database fixtures for tests in other packages.
package sqlitetest

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/myrjola/inkwell/internal/sqlite"
	"github.com/myrjola/inkwell/internal/testhelpers"
)

// NewDatabase creates an isolated in-memory database with the current schema.
func NewDatabase(t testing.TB) *sqlite.Database {
	t.Helper()
	return open(t, ":memory:")
}

// NewFileDatabase creates a database file in a temporary directory. Use it for tests with concurrent writers, where
// the shared-cache in-memory database would report table locks.
func NewFileDatabase(t testing.TB) *sqlite.Database {
	t.Helper()
	return open(t, filepath.Join(t.TempDir(), "test.sqlite3"))
}

func open(t testing.TB, url string) *sqlite.Database {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	db, err := sqlite.NewDatabase(ctx, url, testhelpers.NewLogger(io.Discard))
	if err != nil {
		cancel()
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		if err = db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}
