package scheduler

import (
	"context"
	"errors"
	"time"
)

// Kind names the work a task asks for.
type Kind string

const (
	KindRunJob           Kind = "run-job"
	KindCompositePreview Kind = "composite-preview"
)

// Task is one unit of background work.
type Task struct {
	Kind       Kind      `json:"kind"`
	JobID      string    `json:"jobId,omitempty"`
	SceneID    string    `json:"sceneId,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// RunJob builds a task that executes a queued job.
func RunJob(jobID string) Task {
	return Task{Kind: KindRunJob, JobID: jobID}
}

// CompositePreview builds a task that renders a scene preview.
func CompositePreview(sceneID string) Task {
	return Task{Kind: KindCompositePreview, SceneID: sceneID}
}

// Validate reports whether the task carries the ids its kind needs.
func (t Task) Validate() error {
	switch t.Kind {
	case KindRunJob:
		if t.JobID == "" {
			return errors.New("scheduler: run-job task without job id")
		}
	case KindCompositePreview:
		if t.SceneID == "" {
			return errors.New("scheduler: composite-preview task without scene id")
		}
	default:
		return errors.New("scheduler: unknown task kind " + string(t.Kind))
	}
	return nil
}

// Dispatcher hands tasks to background workers. Enqueue returns once the
// task is accepted; processing happens asynchronously.
type Dispatcher interface {
	Enqueue(ctx context.Context, task Task) error
}

// TryDispatcher is a Dispatcher that can refuse a task instead of waiting
// for room. Best-effort producers running on worker goroutines use it.
type TryDispatcher interface {
	Dispatcher
	TryEnqueue(task Task) error
}

// Handler processes one task.
type Handler func(ctx context.Context, task Task) error
