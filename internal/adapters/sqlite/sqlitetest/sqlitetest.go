// Package sqlitetest opens throwaway in-memory stores for tests.
package sqlitetest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"satdigital/internal/adapters/sqlite"
)

var nameCleaner = strings.NewReplacer("/", "_", " ", "_", "#", "_", "?", "_", "&", "_")

// Open returns a store on a private in-memory database with the production
// PRAGMAs and migrations. It is closed when the test finishes.
func Open(t testing.TB) *sqlite.Store {
	t.Helper()

	// The shared-cache URI keeps the database alive while the pool holds its
	// single connection; the test name keeps databases apart.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		nameCleaner.Replace(t.Name()),
	)
	store, err := sqlite.OpenDSN(context.Background(), dsn)
	if err != nil {
		t.Fatalf("sqlitetest: open: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}
