package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/flock"

	"loom/internal/config"
	"loom/internal/worker"
)

// daemon enforces single-instance execution around the worker pool.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *worker.Pool

	lockPath string
	lock     *flock.Flock
	locked   bool
}

func newDaemon(cfg *config.Config, logger *slog.Logger, pool *worker.Pool) (*daemon, error) {
	if cfg == nil || logger == nil || pool == nil {
		return nil, errors.New("daemon requires config, logger, and pool")
	}
	lockPath := cfg.LockPath()
	return &daemon{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock and drives the worker pool until ctx ends.
func (d *daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another loomd instance holds %s", d.lockPath)
	}
	d.locked = true

	d.logger.Info("loomd started",
		slog.String("lock", d.lockPath),
		slog.String("db", d.cfg.DatabasePath()))

	return d.pool.Run(ctx)
}

// Stop releases the instance lock.
func (d *daemon) Stop() {
	if !d.locked {
		return
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock", slog.Any("error", err))
	}
	d.locked = false
}
