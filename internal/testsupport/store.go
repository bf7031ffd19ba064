package testsupport

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Exec runs raw SQL against the test store. Tests use this to simulate
// conditions that take wall-clock time to occur naturally, such as an
// expired lease or a stale ingestion job.
func Exec(t testing.TB, st *store.Store, query string, args ...any) {
	t.Helper()

	if _, err := st.DB().ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
