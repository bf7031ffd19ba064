package main

import (
	"context"

	"loom/internal/worker"
	"loom/internal/workqueue"
)

// registerHandlers wires the built-in task handlers. Connector binaries link
// their own handlers in here.
func registerHandlers(pool *worker.Pool) {
	// noop exists for smoke-testing a deployment end to end: enqueue one,
	// watch it complete.
	_ = pool.Register("noop", func(ctx context.Context, item *workqueue.Item) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})
}
