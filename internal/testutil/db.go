package testutil

import (
	"path/filepath"
	"testing"

	"github.com/codr1/cafespot/internal/config"
	"github.com/codr1/cafespot/internal/db"
)

// NewTestDB opens a draft store in a nested temp directory the same way
// the CLIs do, so directory creation and migrations both run.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.NewFromConfig(config.StoreConfig{
		Driver:   "sqlite",
		Filename: filepath.Join(t.TempDir(), "data", "cafespot.db"),
	})
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
