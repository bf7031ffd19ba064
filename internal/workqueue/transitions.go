package workqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"loom/internal/store"
)

// Complete marks a claimed item succeeded, storing the result and clearing
// any error text. Returns false when the item is not currently claimed by
// workerID, typically because the lease expired and another worker reclaimed
// it. That outcome means "this worker no longer owns the item", not an
// error.
func (q *Queue) Complete(ctx context.Context, id int64, workerID string, result map[string]any) (bool, error) {
	resultJSON, err := store.EncodeObject(result)
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	res, err := q.store.DB().ExecContext(
		ctx,
		`UPDATE work_items
         SET status = 'succeeded',
             result_json = ?,
             error_text = NULL,
             updated_at = ?
         WHERE id = ?
           AND status = 'claimed'
           AND claimed_by = ?`,
		resultJSON,
		store.FormatTime(time.Now()),
		id,
		strings.TrimSpace(workerID),
	)
	if err != nil {
		return false, fmt.Errorf("complete work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Fail marks a claimed item failed under the same ownership guard as
// Complete. The structured failure payload lands in the result column so a
// single field always carries the outcome. Failed is terminal: the item is
// never offered to claimers again, regardless of remaining attempts.
func (q *Queue) Fail(ctx context.Context, id int64, workerID, errorText string, detail map[string]any) (bool, error) {
	if detail == nil {
		detail = map[string]any{}
	}
	truncated := truncateErrorText(errorText)
	payload := map[string]any{
		"ok":         false,
		"error":      detail,
		"error_text": truncated,
	}
	payloadJSON, err := store.EncodeObject(payload)
	if err != nil {
		return false, fmt.Errorf("marshal failure payload: %w", err)
	}

	res, err := q.store.DB().ExecContext(
		ctx,
		`UPDATE work_items
         SET status = 'failed',
             result_json = ?,
             error_text = ?,
             updated_at = ?
         WHERE id = ?
           AND status = 'claimed'
           AND claimed_by = ?`,
		payloadJSON,
		truncated,
		store.FormatTime(time.Now()),
		id,
		strings.TrimSpace(workerID),
	)
	if err != nil {
		return false, fmt.Errorf("fail work item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
