package store_test

import (
	"context"
	"testing"
	"time"

	"loom/internal/store"
	"loom/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	var count int
	row := st.DB().QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name IN ('work_items','ingestion_jobs','contacts','message_threads','interactions')")
	if err := row.Scan(&count); err != nil {
		t.Fatalf("scan table count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 core tables, got %d", count)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.DB().Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	st.Close()

	if _, err := store.Open(cfg); err == nil {
		t.Fatal("expected schema mismatch error")
	}
}

func TestTimeRoundTripAndOrdering(t *testing.T) {
	early := time.Date(2026, 3, 1, 10, 0, 0, 250_000_000, time.UTC)
	late := time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC)
	whole := time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC)

	a, b, c := store.FormatTime(early), store.FormatTime(late), store.FormatTime(whole)
	if !(a < b && b < c) {
		t.Fatalf("expected lexicographic ordering %q < %q < %q", a, b, c)
	}

	parsed, err := store.ParseTime(b)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(late) {
		t.Fatalf("round trip mismatch: %v vs %v", parsed, late)
	}

	if _, err := store.ParseTime("2025-01-02 03:04:05"); err != nil {
		t.Fatalf("expected legacy layout accepted, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := store.FormatTime(time.Now())
	insert := `INSERT INTO interactions (business_unit, source, content, idempotency_key, created_at)
        VALUES ('CC', 'gmail', 'hello', 'dup-key', ?)`
	if _, err := st.DB().ExecContext(ctx, insert, now); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	_, err := st.DB().ExecContext(ctx, insert, now)
	if err == nil {
		t.Fatal("expected unique violation")
	}
	if !store.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation classification, got %v", err)
	}
	if store.IsUniqueViolation(context.Canceled) {
		t.Fatal("unrelated error misclassified")
	}
}
