package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/workqueue"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 5
	defaultConcurrency  = 2
)

// Handler executes one claimed work item and returns the result recorded on
// completion. A returned error marks the item failed; wrap it with one of
// the package sentinels to classify the failure.
type Handler func(ctx context.Context, item *workqueue.Item) (map[string]any, error)

// Pool claims and executes work items until its context is canceled.
type Pool struct {
	queue    *workqueue.Queue
	cfg      *config.Config
	logger   *slog.Logger
	workerID string

	mu       sync.Mutex
	handlers map[string]Handler
}

// New constructs a Pool with a unique worker identity.
func New(q *workqueue.Queue, cfg *config.Config, logger *slog.Logger) (*Pool, error) {
	if q == nil {
		return nil, errors.New("worker requires a queue")
	}
	if cfg == nil {
		return nil, errors.New("worker requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	workerID := "loomd-" + uuid.NewString()[:8]
	return &Pool{
		queue:    q,
		cfg:      cfg,
		logger:   logger.With(logging.FieldComponent, "worker", logging.FieldWorkerID, workerID),
		workerID: workerID,
		handlers: make(map[string]Handler),
	}, nil
}

// WorkerID returns the identity items are claimed under.
func (p *Pool) WorkerID() string {
	return p.workerID
}

// Register binds a handler to a task type. Later registrations replace
// earlier ones.
func (p *Pool) Register(taskType string, handler Handler) error {
	taskType = strings.TrimSpace(taskType)
	if taskType == "" {
		return errors.New("task type is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	p.mu.Lock()
	p.handlers[taskType] = handler
	p.mu.Unlock()
	return nil
}

func (p *Pool) handler(taskType string) (Handler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handlers[taskType]
	return h, ok
}

// Run polls for work until ctx is canceled. Empty polls sleep for the
// configured interval; a non-empty batch triggers an immediate re-poll so a
// backlog drains at full speed.
func (p *Pool) Run(ctx context.Context) error {
	interval := time.Duration(p.cfg.Worker.PollInterval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	p.logger.Info("worker pool started",
		slog.Any("queues", p.cfg.Worker.Queues),
		slog.Duration("poll_interval", interval))

	for {
		processed, err := p.RunOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			p.logger.Error("poll failed", slog.Any("error", err))
		}
		if processed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("worker pool stopped")
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce claims and executes a single batch, returning how many items were
// processed. Exposed for the daemon's drain-on-shutdown path and for tests.
func (p *Pool) RunOnce(ctx context.Context) (int, error) {
	batch := p.cfg.Worker.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	items, err := p.queue.Claim(ctx, p.workerID, p.cfg.Worker.Queues, batch, p.cfg.Worker.LeaseSeconds)
	if err != nil {
		return 0, fmt.Errorf("claim batch: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	concurrency := p.cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item *workqueue.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			p.process(ctx, item)
		}(item)
	}
	wg.Wait()
	return len(items), nil
}

func (p *Pool) process(ctx context.Context, item *workqueue.Item) {
	log := p.logger.With(
		slog.Int64(logging.FieldWorkItemID, item.ID),
		slog.String(logging.FieldQueue, item.Queue),
		slog.String(logging.FieldTaskType, item.TaskType),
	)

	handler, ok := p.handler(item.TaskType)
	if !ok {
		err := Wrap(ErrValidation, "dispatch", fmt.Sprintf("no handler registered for task type %q", item.TaskType), nil)
		p.fail(ctx, log, item, err)
		return
	}

	result, err := handler(ctx, item)
	if err != nil {
		p.fail(ctx, log, item, err)
		return
	}

	ok, err = p.queue.Complete(ctx, item.ID, p.workerID, result)
	if err != nil {
		log.Error("record completion failed", slog.Any("error", err))
		return
	}
	if !ok {
		log.Warn("lease lost before completion")
		return
	}
	log.Info("work item succeeded", slog.Int("attempt", item.Attempts))
}

func (p *Pool) fail(ctx context.Context, log *slog.Logger, item *workqueue.Item, cause error) {
	ok, err := p.queue.Fail(ctx, item.ID, p.workerID, cause.Error(), FailureDetail(cause))
	if err != nil {
		log.Error("record failure failed", slog.Any("error", err))
		return
	}
	if !ok {
		log.Warn("lease lost before failure", slog.Any("error", cause))
		return
	}
	log.Error("work item failed",
		slog.String("kind", Classify(cause)),
		slog.Int("attempt", item.Attempts),
		slog.Any("error", cause))
}
