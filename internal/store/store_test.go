// ABOUTME: Shared helpers for store tests
// ABOUTME: Builds temp-dir SQLite stores and deterministic fixtures

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func generateTestID(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i))
}

func testPrincipal(email string, role Role) *Principal {
	return &Principal{
		Name:         "Test " + email,
		Email:        email,
		PasswordHash: "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy",
		Role:         role,
		Enabled:      true,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}
