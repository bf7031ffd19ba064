package ingestion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"loom/internal/config"
	"loom/internal/store"
)

// Job statuses. Started rows belong to a run in flight; anything else is a
// terminal value written by Finalize. The status vocabulary is open-ended
// and owned by the callers; these are the conventional terminal values.
const (
	StatusStarted   = "started"
	StatusOK        = "ok"
	StatusError     = "error"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const defaultListLimit = 50

// Job is a tracked ingestion run.
type Job struct {
	ID             int64
	Provider       string
	BusinessUnit   string
	JobType        string
	IdempotencyKey string
	Status         string
	Details        store.Blob
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key identifies one logical run.
type Key struct {
	Provider       string
	BusinessUnit   string
	JobType        string
	IdempotencyKey string
}

func (k *Key) normalize() error {
	k.Provider = strings.TrimSpace(k.Provider)
	k.BusinessUnit = strings.TrimSpace(k.BusinessUnit)
	k.JobType = strings.TrimSpace(k.JobType)
	k.IdempotencyKey = strings.TrimSpace(k.IdempotencyKey)
	if k.Provider == "" || k.BusinessUnit == "" || k.JobType == "" || k.IdempotencyKey == "" {
		return errors.New("provider, business_unit, job_type, and idempotency_key are all required")
	}
	return nil
}

// BeginResult reports the outcome of Begin. Exactly one of the three cases
// holds: a fresh start (Accepted), a reclaim of a stale started row
// (Accepted and Reclaimed), or a duplicate (neither, with Status and Details
// describing the existing run).
type BeginResult struct {
	Accepted       bool
	Reclaimed      bool
	Duplicate      bool
	Status         string
	IdempotencyKey string
	Details        store.Blob
}

// Filter narrows List output. Zero values mean "no filter".
type Filter struct {
	Provider     string
	BusinessUnit string
	Status       string
	Limit        int
}

// Tracker exposes the ingestion-job operations over a shared store.
type Tracker struct {
	store *store.Store
	cfg   *config.Config
}

// New constructs a Tracker.
func New(st *store.Store, cfg *config.Config) (*Tracker, error) {
	if st == nil {
		return nil, errors.New("ingestion requires a store")
	}
	if cfg == nil {
		return nil, errors.New("ingestion requires a config")
	}
	return &Tracker{store: st, cfg: cfg}, nil
}

// Begin registers the start of a run. The first caller for a key wins and
// gets Accepted; later callers get a duplicate report, unless the existing
// row is a started run older than the configured staleness window, in which
// case the caller takes it over and gets Accepted with Reclaimed set.
func (t *Tracker) Begin(ctx context.Context, key Key, details map[string]any) (BeginResult, error) {
	if err := key.normalize(); err != nil {
		return BeginResult{}, err
	}
	if !t.cfg.AllowedUnit(key.BusinessUnit) {
		return BeginResult{}, fmt.Errorf("business_unit %q is not in the allowed set %v", key.BusinessUnit, t.cfg.Business.Units)
	}

	detailsJSON, err := encodeDetails(details)
	if err != nil {
		return BeginResult{}, fmt.Errorf("marshal details: %w", err)
	}

	now := store.FormatTime(time.Now())
	_, err = t.store.DB().ExecContext(
		ctx,
		`INSERT INTO ingestion_jobs
            (provider, business_unit, job_type, idempotency_key, status, details_json, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		key.Provider,
		key.BusinessUnit,
		key.JobType,
		key.IdempotencyKey,
		StatusStarted,
		detailsJSON,
		now,
		now,
	)
	if err == nil {
		return BeginResult{Accepted: true, Status: StatusStarted, IdempotencyKey: key.IdempotencyKey}, nil
	}
	if !store.IsUniqueViolation(err) {
		return BeginResult{}, fmt.Errorf("insert ingestion job: %w", err)
	}

	if window := t.cfg.StaleStartedAfter(); window > 0 {
		reclaimed, err := t.reclaimStale(ctx, key, detailsJSON, window)
		if err != nil {
			return BeginResult{}, err
		}
		if reclaimed {
			return BeginResult{Accepted: true, Reclaimed: true, Status: StatusStarted, IdempotencyKey: key.IdempotencyKey}, nil
		}
	}

	return t.describeDuplicate(ctx, key)
}

// reclaimStale takes over a started row whose last update is older than the
// window. The guard re-checks status and age so a concurrent finalize or
// reclaim makes this update match zero rows.
func (t *Tracker) reclaimStale(ctx context.Context, key Key, detailsJSON any, window time.Duration) (bool, error) {
	now := time.Now()
	cutoff := store.FormatTime(now.Add(-window))
	res, err := t.store.DB().ExecContext(
		ctx,
		`UPDATE ingestion_jobs
         SET status = ?, details_json = ?, updated_at = ?
         WHERE provider = ? AND business_unit = ? AND job_type = ? AND idempotency_key = ?
           AND status = ? AND updated_at < ?`,
		StatusStarted,
		detailsJSON,
		store.FormatTime(now),
		key.Provider,
		key.BusinessUnit,
		key.JobType,
		key.IdempotencyKey,
		StatusStarted,
		cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("reclaim stale ingestion job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (t *Tracker) describeDuplicate(ctx context.Context, key Key) (BeginResult, error) {
	row := t.store.DB().QueryRowContext(
		ctx,
		`SELECT status, details_json FROM ingestion_jobs
         WHERE provider = ? AND business_unit = ? AND job_type = ? AND idempotency_key = ?`,
		key.Provider, key.BusinessUnit, key.JobType, key.IdempotencyKey,
	)
	var (
		status  string
		details sql.NullString
	)
	if err := row.Scan(&status, &details); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The winner's row vanished between insert and lookup.
			return BeginResult{Duplicate: true, Status: "duplicate", IdempotencyKey: key.IdempotencyKey}, nil
		}
		return BeginResult{}, fmt.Errorf("look up duplicate ingestion job: %w", err)
	}
	return BeginResult{
		Duplicate:      true,
		Status:         status,
		IdempotencyKey: key.IdempotencyKey,
		Details:        store.DecodeBlob(details),
	}, nil
}

// Finalize records a run's outcome. It applies unconditionally to whatever
// row matches the key, even one another Begin has since reclaimed; the last
// finalize wins. Returns false when no row matches the key.
//
// Any non-empty status other than "started" is accepted; callers own the
// vocabulary ("ok", "error", "succeeded", ...). Writing "started" back is
// refused because it would reopen the run outside Begin's reclaim guard.
func (t *Tracker) Finalize(ctx context.Context, key Key, status string, details map[string]any) (bool, error) {
	if err := key.normalize(); err != nil {
		return false, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		return false, errors.New("finalize status is required")
	}
	if status == StatusStarted {
		return false, fmt.Errorf("finalize status %q would reopen the run; use Begin", StatusStarted)
	}

	detailsJSON, err := encodeDetails(details)
	if err != nil {
		return false, fmt.Errorf("marshal details: %w", err)
	}

	res, err := t.store.DB().ExecContext(
		ctx,
		`UPDATE ingestion_jobs
         SET status = ?, details_json = ?, updated_at = ?
         WHERE provider = ? AND business_unit = ? AND job_type = ? AND idempotency_key = ?`,
		status,
		detailsJSON,
		store.FormatTime(time.Now()),
		key.Provider,
		key.BusinessUnit,
		key.JobType,
		key.IdempotencyKey,
	)
	if err != nil {
		return false, fmt.Errorf("finalize ingestion job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// List returns tracked jobs matching the filter, most recently updated first.
func (t *Tracker) List(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT id, provider, business_unit, job_type, idempotency_key, status, details_json, created_at, updated_at
              FROM ingestion_jobs WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.BusinessUnit != "" {
		query += ` AND business_unit = ?`
		args = append(args, filter.BusinessUnit)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ingestion jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job       Job
			details   sql.NullString
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(
			&job.ID,
			&job.Provider,
			&job.BusinessUnit,
			&job.JobType,
			&job.IdempotencyKey,
			&job.Status,
			&details,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingestion job: %w", err)
		}
		job.Details = store.DecodeBlob(details)
		if ts, err := store.ParseTime(createdAt); err == nil {
			job.CreatedAt = ts
		}
		if ts, err := store.ParseTime(updatedAt); err == nil {
			job.UpdatedAt = ts
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// encodeDetails keeps the original NULL-for-absent convention: only supplied
// details are stored, so the column distinguishes "none given" from "{}".
func encodeDetails(details map[string]any) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	encoded, err := store.EncodeObject(details)
	if err != nil {
		return nil, err
	}
	return encoded, nil
}
