// Package testutil provides builders and database helpers for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/refcheck/internal/infrastructure/sqlite"
)

// NewStateDB opens a migrated state database in a temp dir. The database
// is closed when the test ends; closing it earlier is fine.
func NewStateDB(t *testing.T) *sqlite.DB {
	t.Helper()
	return OpenStateDB(t, filepath.Join(t.TempDir(), "state.db"))
}

// OpenStateDB opens (or reopens) the state database at path.
func OpenStateDB(t *testing.T, path string) *sqlite.DB {
	t.Helper()
	db, err := sqlite.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
