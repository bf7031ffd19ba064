// Package workqueue implements the durable work queue over the shared
// store's work_items table.
//
// Multiple independent processes enqueue tasks and a worker pool claims them
// under time-bounded leases. Claim runs its candidate selection and the
// per-row conditional updates inside a single immediate (exclusive-writer)
// transaction; the WHERE clause of each update re-checks eligibility, so of
// two racing claimers exactly one observes an affected row. This is correct
// because SQLite serializes writers; a multi-writer engine would need
// SELECT ... FOR UPDATE SKIP LOCKED instead.
//
// Lifecycle: queued -> claimed -> succeeded | failed. A claimed item whose
// lease expires becomes claimable again as long as attempts remain; failed
// is terminal and is never reclaimed. Nothing here retries automatically;
// re-enqueueing and backoff are caller policy.
//
// Idempotency keys collapse duplicate enqueues onto the first row via the
// unique index; the collision is reported as a duplicate result, not an
// error. Complete and Fail return false instead of erroring when the caller
// no longer owns the item.
package workqueue
