package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spritegen/internal/bootstrap"
	"spritegen/internal/infra"
	"spritegen/internal/pipeline"
	"spritegen/internal/scheduler"
)

// taskSource is the queue side the worker drains.
type taskSource interface {
	Consume(ctx context.Context, handler scheduler.Handler) error
}

type jobWorker struct {
	source      taskSource
	orch        *pipeline.Orchestrator
	logger      infra.Logger
	concurrency int
	drain       time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if cfg.QueueDriver != infra.DriverRedis {
		logger.Fatal().Str("queue", cfg.QueueDriver).Msg("worker: requires QUEUE_DRIVER=redis; the inline queue runs inside the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := bootstrap.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to open stores")
	}
	defer stores.Close()

	queue, client, err := bootstrap.OpenQueue(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to connect queue")
	}
	defer client.Close()

	blobs, err := bootstrap.OpenFileStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	orch, err := bootstrap.NewOrchestrator(cfg, stores, blobs, queue, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipelines")
	}

	worker := &jobWorker{
		source:      queue,
		orch:        orch,
		logger:      logger,
		concurrency: cfg.WorkerConcurrency,
		drain:       cfg.WorkerDrain,
	}
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run starts concurrency consumers and blocks until ctx is done. Consumers
// stop taking tasks once ctx ends; a task in flight keeps running for up
// to the drain timeout, after which its context is cancelled and the
// pipeline fails and refunds the job.
func (w *jobWorker) Run(ctx context.Context) error {
	n := w.concurrency
	if n <= 0 {
		n = 1
	}
	w.logger.Info().Int("concurrency", n).Msg("worker: started")

	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- w.source.Consume(ctx, w.handleTask)
		}()
	}
	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (w *jobWorker) handleTask(ctx context.Context, task scheduler.Task) error {
	w.logger.Debug().Str("task", string(task.Kind)).Str("job_id", task.JobID).Msg("worker: picked task")
	taskCtx, cancel := drainContext(ctx, w.drain)
	defer cancel()
	return w.orch.Handle(taskCtx, task)
}

// drainContext returns a context that outlives ctx by grace.
func drainContext(ctx context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-timer.C:
			cancel()
		case <-taskCtx.Done():
		}
	})
	return taskCtx, func() {
		stop()
		cancel()
	}
}
