// Package store opens and owns the shared SQLite database every component
// persists into.
//
// One Store handle is constructed per process and passed explicitly to the
// work queue, ingestion tracker, and contact upsert layers; there is no
// module-level singleton. Open applies the WAL/foreign-key/busy-timeout
// pragmas, creates the embedded schema on first use, and refuses to run
// against a mismatched schema version.
//
// Timestamps are persisted as fixed-width UTC strings so that lexicographic
// comparison inside SQL predicates (lease expiry, monotonic merge rules)
// equals chronological comparison. Use FormatTime/ParseTime for every
// timestamp column.
package store
