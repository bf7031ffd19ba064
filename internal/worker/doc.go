// Package worker runs claimed work items through registered task handlers.
// The pool polls the queue, executes each claimed item, and records the
// outcome with the ownership-guarded transitions. It carries no retry logic
// of its own: a handler failure is terminal, and a crashed worker's items
// come back through lease expiry.
package worker
