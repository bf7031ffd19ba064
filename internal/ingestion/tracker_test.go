package ingestion_test

import (
	"context"
	"testing"

	"loom/internal/config"
	"loom/internal/ingestion"
	"loom/internal/testsupport"
)

func newTracker(t *testing.T) (*ingestion.Tracker, *config.Config) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	tr, err := ingestion.New(st, cfg)
	if err != nil {
		t.Fatalf("ingestion.New: %v", err)
	}
	return tr, cfg
}

func gmailKey() ingestion.Key {
	return ingestion.Key{
		Provider:       "gmail",
		BusinessUnit:   "CC",
		JobType:        "recent",
		IdempotencyKey: "2026-09-01T10",
	}
}

func TestBeginValidation(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	if _, err := tr.Begin(ctx, ingestion.Key{Provider: "gmail"}, nil); err == nil {
		t.Fatal("expected error for incomplete key")
	}

	key := gmailKey()
	key.BusinessUnit = "NOPE"
	if _, err := tr.Begin(ctx, key, nil); err == nil {
		t.Fatal("expected error for unknown business unit")
	}
}

func TestBeginFirstWinsLaterDuplicates(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	key := gmailKey()

	first, err := tr.Begin(ctx, key, map[string]any{"cursor": "abc"})
	if err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if !first.Accepted || first.Status != ingestion.StatusStarted {
		t.Fatalf("expected accepted start, got %+v", first)
	}

	second, err := tr.Begin(ctx, key, nil)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if second.Accepted || !second.Duplicate {
		t.Fatalf("expected duplicate, got %+v", second)
	}
	if second.Status != ingestion.StatusStarted {
		t.Fatalf("duplicate should carry existing status, got %q", second.Status)
	}
	if second.Details.Value()["cursor"] != "abc" {
		t.Fatalf("duplicate should carry existing details, got %+v", second.Details)
	}
}

func TestBeginAfterFinalizeStillDuplicate(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	key := gmailKey()

	if _, err := tr.Begin(ctx, key, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	found, err := tr.Finalize(ctx, key, ingestion.StatusSucceeded, map[string]any{"count": 12})
	if err != nil || !found {
		t.Fatalf("Finalize: found=%v err=%v", found, err)
	}

	res, err := tr.Begin(ctx, key, nil)
	if err != nil {
		t.Fatalf("Begin after finalize: %v", err)
	}
	if res.Accepted || !res.Duplicate || res.Status != ingestion.StatusSucceeded {
		t.Fatalf("expected duplicate of succeeded run, got %+v", res)
	}
}

func TestBeginReclaimsStaleStarted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingestion.StaleStartedAfterHours = 1
	st := testsupport.MustOpenStore(t, cfg)
	tr, err := ingestion.New(st, cfg)
	if err != nil {
		t.Fatalf("ingestion.New: %v", err)
	}
	ctx := context.Background()
	key := gmailKey()

	if _, err := tr.Begin(ctx, key, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	// A fresh started row is not up for grabs.
	res, err := tr.Begin(ctx, key, nil)
	if err != nil {
		t.Fatalf("Begin fresh: %v", err)
	}
	if res.Accepted {
		t.Fatalf("fresh started row must not be reclaimed: %+v", res)
	}

	testsupport.Exec(t, st,
		`UPDATE ingestion_jobs SET updated_at = '2000-01-01T00:00:00.000000000Z' WHERE idempotency_key = ?`,
		key.IdempotencyKey)

	res, err = tr.Begin(ctx, key, map[string]any{"cursor": "retry"})
	if err != nil {
		t.Fatalf("Begin stale: %v", err)
	}
	if !res.Accepted || !res.Reclaimed {
		t.Fatalf("expected stale row reclaimed, got %+v", res)
	}

	jobs, err := tr.List(ctx, ingestion.Filter{Provider: "gmail"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != ingestion.StatusStarted {
		t.Fatalf("expected one started row, got %+v", jobs)
	}
	if jobs[0].Details.Value()["cursor"] != "retry" {
		t.Fatalf("reclaim should replace details, got %+v", jobs[0].Details)
	}
}

func TestBeginZeroWindowDisablesReclaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Ingestion.StaleStartedAfterHours = 0
	st := testsupport.MustOpenStore(t, cfg)
	tr, err := ingestion.New(st, cfg)
	if err != nil {
		t.Fatalf("ingestion.New: %v", err)
	}
	ctx := context.Background()
	key := gmailKey()

	if _, err := tr.Begin(ctx, key, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	testsupport.Exec(t, st,
		`UPDATE ingestion_jobs SET updated_at = '2000-01-01T00:00:00.000000000Z' WHERE idempotency_key = ?`,
		key.IdempotencyKey)

	res, err := tr.Begin(ctx, key, nil)
	if err != nil {
		t.Fatalf("second Begin: %v", err)
	}
	if res.Accepted {
		t.Fatalf("reclaim disabled, expected duplicate, got %+v", res)
	}
}

func TestFinalizeAcceptsCallerStatuses(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	key := gmailKey()

	if _, err := tr.Begin(ctx, key, nil); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := tr.Finalize(ctx, key, "", nil); err == nil {
		t.Fatal("expected error for empty status")
	}
	if _, err := tr.Finalize(ctx, key, "started", nil); err == nil {
		t.Fatal("expected error finalizing back to started")
	}

	// The status vocabulary belongs to the caller.
	found, err := tr.Finalize(ctx, key, "ok", map[string]any{"count": 3})
	if err != nil {
		t.Fatalf("Finalize ok: %v", err)
	}
	if !found {
		t.Fatal("expected finalize to match the row")
	}
	jobs, err := tr.List(ctx, ingestion.Filter{Status: ingestion.StatusOK})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Details.Value()["count"] != float64(3) {
		t.Fatalf("expected ok job with details, got %+v", jobs)
	}

	found, err = tr.Finalize(ctx, key, "FAILED", map[string]any{"error": "quota"})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !found {
		t.Fatal("expected finalize to match the row")
	}

	jobs, err = tr.List(ctx, ingestion.Filter{Status: ingestion.StatusFailed})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Details.Value()["error"] != "quota" {
		t.Fatalf("expected failed job with details, got %+v", jobs)
	}
}

func TestFinalizeUnknownKeyReportsNotFound(t *testing.T) {
	tr, _ := newTracker(t)

	found, err := tr.Finalize(context.Background(), gmailKey(), ingestion.StatusSucceeded, nil)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if found {
		t.Fatal("expected no row to match")
	}
}

func TestListFilters(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()

	keys := []ingestion.Key{
		{Provider: "gmail", BusinessUnit: "CC", JobType: "recent", IdempotencyKey: "a"},
		{Provider: "gmail", BusinessUnit: "ACS", JobType: "recent", IdempotencyKey: "b"},
		{Provider: "calendar", BusinessUnit: "CC", JobType: "upcoming", IdempotencyKey: "c"},
	}
	for _, key := range keys {
		if _, err := tr.Begin(ctx, key, nil); err != nil {
			t.Fatalf("Begin %+v: %v", key, err)
		}
	}

	jobs, err := tr.List(ctx, ingestion.Filter{Provider: "gmail"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 gmail jobs, got %d", len(jobs))
	}

	jobs, err = tr.List(ctx, ingestion.Filter{Provider: "gmail", BusinessUnit: "ACS"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].IdempotencyKey != "b" {
		t.Fatalf("unexpected filter result: %+v", jobs)
	}
}
