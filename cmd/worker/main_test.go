package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"spritegen/internal/adapter/memory"
	"spritegen/internal/domain"
	"spritegen/internal/pipeline"
	"spritegen/internal/scheduler"
)

type fakeSource struct {
	mu      sync.Mutex
	tasks   []scheduler.Task
	results []error
	err     error
}

func (s *fakeSource) Consume(ctx context.Context, handler scheduler.Handler) error {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, task := range tasks {
		err := handler(ctx, task)
		s.mu.Lock()
		s.results = append(s.results, err)
		s.mu.Unlock()
	}
	if s.err != nil {
		return s.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func newTestWorker(source taskSource) *jobWorker {
	store := memory.NewStore()
	orch := pipeline.NewOrchestrator(pipeline.Deps{Jobs: store, Ledger: store, Entities: store})
	return &jobWorker{source: source, orch: orch, logger: zerolog.Nop(), concurrency: 2}
}

func TestWorkerRoutesTasksToOrchestrator(t *testing.T) {
	source := &fakeSource{tasks: []scheduler.Task{scheduler.RunJob("missing")}, err: errors.New("stop")}
	w := newTestWorker(source)

	err := w.Run(context.Background())
	if err == nil || err.Error() != "stop" {
		t.Fatalf("expected consumer error, got %v", err)
	}
	if len(source.results) != 1 || !errors.Is(source.results[0], domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound from handler, got %v", source.results)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := newTestWorker(&fakeSource{})

	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDrainContextOutlivesShutdown(t *testing.T) {
	parent, shutdown := context.WithCancel(context.Background())
	ctx, cancel := drainContext(parent, 300*time.Millisecond)
	defer cancel()

	shutdown()
	select {
	case <-ctx.Done():
		t.Fatal("task context cancelled together with the worker")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task context not cancelled after the drain timeout")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", ctx.Err())
	}
}

func TestDrainContextReleasedByCancel(t *testing.T) {
	ctx, cancel := drainContext(context.Background(), time.Hour)
	cancel()
	if ctx.Err() == nil {
		t.Fatal("expected cancelled context")
	}
}
