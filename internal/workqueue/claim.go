package workqueue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"loom/internal/store"
)

// eligiblePredicate selects rows a claimer may take: freshly queued, or
// claimed with an expired lease, and never out of attempts. Failed rows are
// terminal and excluded by construction. The same predicate guards the
// claim update so a racing loser's write matches zero rows.
const eligiblePredicate = `(status = 'queued'
       OR (status = 'claimed' AND claim_expires_at IS NOT NULL AND claim_expires_at < ?))
      AND attempts < max_attempts`

// Claim leases up to limit eligible items to workerID for leaseSeconds.
//
// The select and the per-row conditional updates run inside one immediate
// transaction; only rows whose update reports an affected row are returned.
// Items come back fully hydrated in (priority ASC, created_at ASC) order.
// Limit is clamped to [1,50], leaseSeconds to [30,3600]; zero leaseSeconds
// selects the configured default.
func (q *Queue) Claim(ctx context.Context, workerID string, queues []string, limit, leaseSeconds int) ([]*Item, error) {
	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		return nil, errors.New("worker_id is required")
	}

	if limit < minClaimLimit {
		limit = minClaimLimit
	}
	if limit > maxClaimLimit {
		limit = maxClaimLimit
	}
	if leaseSeconds <= 0 {
		leaseSeconds = q.cfg.Queue.DefaultLease
	}
	if leaseSeconds < minLeaseSeconds {
		leaseSeconds = minLeaseSeconds
	}
	if leaseSeconds > maxLeaseSeconds {
		leaseSeconds = maxLeaseSeconds
	}

	queueClause := ""
	queueArgs := make([]any, 0, len(queues))
	cleaned := make([]string, 0, len(queues))
	for _, queue := range queues {
		if trimmed := strings.TrimSpace(queue); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) > 0 {
		queueClause = ` AND queue IN (` + store.MakePlaceholders(len(cleaned)) + `)`
		for _, queue := range cleaned {
			queueArgs = append(queueArgs, queue)
		}
	}

	now := time.Now()
	nowStr := store.FormatTime(now)
	expiresStr := store.FormatTime(now.Add(time.Duration(leaseSeconds) * time.Second))

	claimed, err := q.claimIDs(ctx, workerID, queueClause, queueArgs, limit, nowStr, expiresStr)
	if err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(claimed))
	for _, id := range claimed {
		item, err := q.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

// claimIDs performs the select + conditional updates on a dedicated
// connection so BEGIN IMMEDIATE and its COMMIT observe the same session.
func (q *Queue) claimIDs(ctx context.Context, workerID, queueClause string, queueArgs []any, limit int, nowStr, expiresStr string) ([]int64, error) {
	conn, err := q.store.DB().Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			// The rollback must run even when ctx was canceled mid-claim;
			// otherwise the connection returns to the pool with an open
			// IMMEDIATE transaction.
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	selectQuery := `SELECT id FROM work_items WHERE ` + eligiblePredicate + queueClause +
		` ORDER BY priority ASC, created_at ASC LIMIT ?`
	selectArgs := append([]any{nowStr}, queueArgs...)
	selectArgs = append(selectArgs, limit)

	rows, err := conn.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	var candidates []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidates = append(candidates, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	rows.Close()

	var claimed []int64
	for _, id := range candidates {
		res, err := conn.ExecContext(
			ctx,
			`UPDATE work_items
             SET status = 'claimed',
                 claimed_by = ?,
                 claimed_at = ?,
                 claim_expires_at = ?,
                 attempts = attempts + 1,
                 updated_at = ?
             WHERE id = ? AND `+eligiblePredicate,
			workerID,
			nowStr,
			expiresStr,
			nowStr,
			id,
			nowStr,
		)
		if err != nil {
			return nil, fmt.Errorf("claim item %d: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected > 0 {
			claimed = append(claimed, id)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	committed = true
	return claimed, nil
}
