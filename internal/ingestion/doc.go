// Package ingestion tracks sync runs so each logical run executes at most
// once. A run is identified by (provider, business_unit, job_type,
// idempotency_key); the composite unique index in the store makes the first
// Begin the winner and turns every later Begin for the same key into a
// duplicate report describing the existing row.
//
// A run stuck in "started" past the configured staleness window may be
// reclaimed by a later Begin, which covers crashed ingesters that never
// finalized.
package ingestion
