package workqueue

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

// Limits applied to caller-supplied values.
const (
	minClaimLimit = 1
	maxClaimLimit = 50

	minLeaseSeconds = 30
	maxLeaseSeconds = 3600

	defaultListLimit = 50
	maxListLimit     = 500

	maxErrorTextBytes = 2000
)

// Queue exposes the durable work queue operations over a shared store.
type Queue struct {
	store   *store.Store
	cfg     *config.Config
	schemas *schemaSet
}

// New constructs a Queue. When the config names a payload schema directory,
// all schemas are compiled up front so enqueue validation cannot fail lazily.
func New(st *store.Store, cfg *config.Config) (*Queue, error) {
	if st == nil {
		return nil, errors.New("workqueue requires a store")
	}
	if cfg == nil {
		return nil, errors.New("workqueue requires a config")
	}

	schemas, err := loadSchemas(cfg.Queue.PayloadSchemaDir)
	if err != nil {
		return nil, err
	}
	return &Queue{store: st, cfg: cfg, schemas: schemas}, nil
}

// Enqueue inserts a new queued work item. Idempotency-key collisions are
// reported as duplicates, never as errors.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (EnqueueResult, error) {
	queue := strings.TrimSpace(req.Queue)
	taskType := strings.TrimSpace(req.TaskType)
	if queue == "" {
		return EnqueueResult{}, errors.New("queue is required")
	}
	if taskType == "" {
		return EnqueueResult{}, errors.New("task_type is required")
	}
	if req.BusinessUnit != "" && !q.cfg.AllowedUnit(req.BusinessUnit) {
		return EnqueueResult{}, fmt.Errorf("business_unit %q is not in the allowed set %v", req.BusinessUnit, q.cfg.Business.Units)
	}

	if err := q.schemas.validate(taskType, req.Payload); err != nil {
		return EnqueueResult{}, err
	}

	priority := q.cfg.Queue.DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.Queue.DefaultMaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	payloadJSON, err := store.EncodeObject(req.Payload)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	now := store.FormatTime(time.Now())
	res, err := q.store.DB().ExecContext(
		ctx,
		`INSERT INTO work_items
            (queue, task_type, business_unit, status, priority, payload_json,
             idempotency_key, created_by, max_attempts, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		queue,
		taskType,
		store.NullableString(req.BusinessUnit),
		StatusQueued,
		priority,
		payloadJSON,
		store.NullableString(req.IdempotencyKey),
		store.NullableString(req.CreatedBy),
		maxAttempts,
		now,
		now,
	)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return q.describeDuplicate(ctx, req.IdempotencyKey)
		}
		return EnqueueResult{}, fmt.Errorf("insert work item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("last insert id: %w", err)
	}
	return EnqueueResult{Accepted: true, WorkItemID: id, Status: StatusQueued}, nil
}

// describeDuplicate resolves the colliding row when possible. Without an
// idempotency key the collision came from some other constraint and the
// existing row cannot be identified.
func (q *Queue) describeDuplicate(ctx context.Context, idempotencyKey string) (EnqueueResult, error) {
	if idempotencyKey == "" {
		return EnqueueResult{Duplicate: true}, nil
	}

	row := q.store.DB().QueryRowContext(
		ctx,
		`SELECT id, status FROM work_items WHERE idempotency_key = ?`,
		idempotencyKey,
	)
	var (
		id     int64
		status string
	)
	if err := row.Scan(&id, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EnqueueResult{Duplicate: true}, nil
		}
		return EnqueueResult{}, fmt.Errorf("look up duplicate: %w", err)
	}
	return EnqueueResult{Duplicate: true, WorkItemID: id, Status: Status(status)}, nil
}

// Get fetches a work item by identifier, nil when absent.
func (q *Queue) Get(ctx context.Context, id int64) (*Item, error) {
	row := q.store.DB().QueryRowContext(ctx, `SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item: %w", err)
	}
	return item, nil
}

// List returns work items matching the filter, most recently updated first.
func (q *Queue) List(ctx context.Context, filter Filter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items WHERE 1=1`
	args := make([]any, 0, 4)

	if filter.Queue != "" {
		query += ` AND queue = ?`
		args = append(args, filter.Queue)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.BusinessUnit != "" && q.cfg.AllowedUnit(filter.BusinessUnit) {
		query += ` AND business_unit = ?`
		args = append(args, filter.BusinessUnit)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const itemColumns = "id, queue, task_type, business_unit, status, priority, payload_json, result_json, error_text, attempts, max_attempts, idempotency_key, created_by, claimed_by, claimed_at, claim_expires_at, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		queue         string
		taskType      string
		businessUnit  sql.NullString
		statusStr     string
		priority      int
		payloadRaw    sql.NullString
		resultRaw     sql.NullString
		errorText     sql.NullString
		attempts      int
		maxAttempts   int
		idemKey       sql.NullString
		createdBy     sql.NullString
		claimedBy     sql.NullString
		claimedAtRaw  sql.NullString
		claimExpires  sql.NullString
		createdAtRaw  string
		updatedAtRaw  string
	)

	if err := scanner.Scan(
		&id,
		&queue,
		&taskType,
		&businessUnit,
		&statusStr,
		&priority,
		&payloadRaw,
		&resultRaw,
		&errorText,
		&attempts,
		&maxAttempts,
		&idemKey,
		&createdBy,
		&claimedBy,
		&claimedAtRaw,
		&claimExpires,
		&createdAtRaw,
		&updatedAtRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:             id,
		Queue:          queue,
		TaskType:       taskType,
		BusinessUnit:   businessUnit.String,
		Status:         Status(statusStr),
		Priority:       priority,
		Payload:        store.DecodeBlob(payloadRaw),
		Result:         store.DecodeBlob(resultRaw),
		ErrorText:      errorText.String,
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		IdempotencyKey: idemKey.String,
		CreatedBy:      createdBy.String,
		ClaimedBy:      claimedBy.String,
	}

	if claimedAtRaw.Valid {
		if t, err := store.ParseTime(claimedAtRaw.String); err == nil {
			item.ClaimedAt = &t
		}
	}
	if claimExpires.Valid {
		if t, err := store.ParseTime(claimExpires.String); err == nil {
			item.ClaimExpiresAt = &t
		}
	}
	if t, err := store.ParseTime(createdAtRaw); err == nil {
		item.CreatedAt = t
	}
	if t, err := store.ParseTime(updatedAtRaw); err == nil {
		item.UpdatedAt = t
	}
	return item, nil
}

func truncateErrorText(text string) string {
	if len(text) <= maxErrorTextBytes {
		return text
	}
	truncated := text[:maxErrorTextBytes]
	// Back off any split multi-byte rune at the cut point.
	for len(truncated) > 0 && truncated[len(truncated)-1]&0xC0 == 0x80 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated
}
