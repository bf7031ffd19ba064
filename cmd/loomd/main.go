package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/store"
	"loom/internal/worker"
	"loom/internal/workqueue"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		return
	}
	defer st.Close()

	queue, err := workqueue.New(st, cfg)
	if err != nil {
		logger.Error("init work queue", slog.Any("error", err))
		return
	}

	pool, err := worker.New(queue, cfg, logger)
	if err != nil {
		logger.Error("init worker pool", slog.Any("error", err))
		return
	}
	registerHandlers(pool)

	d, err := newDaemon(cfg, logger, pool)
	if err != nil {
		logger.Error("create daemon", slog.Any("error", err))
		return
	}
	defer d.Stop()

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon exited", slog.Any("error", err))
		return
	}
	logger.Info("loomd shut down")
}
