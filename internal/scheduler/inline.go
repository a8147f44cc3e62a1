package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spritegen/internal/infra"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("scheduler: dispatcher closed")
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull = errors.New("scheduler: queue full")
)

// InlineOptions configures an Inline dispatcher.
type InlineOptions struct {
	Workers int
	Buffer  int
	Logger  *infra.Logger
}

// Inline runs tasks on in-process worker goroutines. It backs the memory
// store in development where no Redis is around.
type Inline struct {
	tasks   chan Task
	handler Handler
	logger  *infra.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewInline starts the workers. They run handler with ctx until Close.
func NewInline(ctx context.Context, handler Handler, opts InlineOptions) *Inline {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	d := &Inline{tasks: make(chan Task, buffer), handler: handler, logger: logger}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for task := range d.tasks {
				run(ctx, d.logger, d.handler, task)
			}
		}()
	}
	return d
}

// Enqueue hands the task to a worker, waiting for buffer space if needed.
func (d *Inline) Enqueue(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue hands the task to a worker only if the buffer has room.
func (d *Inline) TryEnqueue(task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish.
func (d *Inline) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	d.wg.Wait()
}
