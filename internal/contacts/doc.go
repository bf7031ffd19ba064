// Package contacts maintains the shared contact graph: contact rows plus
// their satellite identity links, external references, message threads, and
// interactions. Every write is an idempotent upsert keyed by a natural
// external identity, so connectors can replay their feeds without creating
// duplicates.
//
// Merge policy is deliberately per field. Contact full_name and company fill
// in only when blank, a thread's latest_message_at only moves forward, and
// link metadata and interaction content are replaced outright by the latest
// writer. Callers must not assume one policy covers all fields.
package contacts
