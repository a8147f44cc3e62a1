package memory

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"

	"spritegen/internal/domain"
)

// CreateJob stores a queued job.
func (s *Store) CreateJob(_ context.Context, in domain.NewJob) (domain.Job, error) {
	if !in.Type.Valid() {
		return domain.Job{}, domain.ErrUnknownJobType
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job := &domain.Job{
		ID:             id,
		UserID:         in.UserID,
		Type:           in.Type,
		Status:         domain.JobStatusQueued,
		Input:          cloneRaw(in.Input),
		CreditsCharged: in.CreditsCharged,
		ReferenceID:    in.ReferenceID,
		CreatedAt:      s.timestamp(),
	}
	s.jobs[id] = job
	return copyJob(job), nil
}

// UpdateProgress moves the job forward and marks it processing.
func (s *Store) UpdateProgress(_ context.Context, jobID string, progress int, currentStep string) error {
	if progress < 0 || progress > 100 {
		return domain.ErrProgressOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	if progress < job.Progress {
		return domain.ErrProgressRegression
	}
	if job.Status == domain.JobStatusQueued {
		now := s.timestamp()
		job.StartedAt = &now
	}
	job.Status = domain.JobStatusProcessing
	job.Progress = progress
	job.CurrentStep = currentStep
	return nil
}

// AppendStep records a step for an existing job.
func (s *Store) AppendStep(_ context.Context, in domain.NewStep) (domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[in.JobID]; !ok {
		return domain.JobStep{}, domain.ErrJobNotFound
	}
	status := in.Status
	if status == "" {
		status = domain.StepCompleted
	}
	step := &domain.JobStep{
		ID:           uuid.NewString(),
		JobID:        in.JobID,
		Stage:        in.Stage,
		Name:         in.Name,
		Order:        in.Order,
		Status:       status,
		Output:       cloneRaw(in.Output),
		Error:        in.Error,
		PredictionID: in.PredictionID,
		DurationMS:   in.DurationMS,
		CreatedAt:    s.timestamp(),
	}
	s.steps = append(s.steps, step)
	return *step, nil
}

// Complete finishes the job. Terminal jobs are left untouched.
func (s *Store) Complete(_ context.Context, jobID string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	now := s.timestamp()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.Result = cloneRaw(result)
	job.CompletedAt = &now
	return nil
}

// Fail marks the job failed. It reports ErrJobTerminal when the job already
// reached a terminal state.
func (s *Store) Fail(_ context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	now := s.timestamp()
	job.Status = domain.JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	return nil
}

// Cancel stops a queued or processing job.
func (s *Store) Cancel(_ context.Context, jobID string) (domain.CancelOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return "", domain.ErrJobNotFound
	}
	if job.Status.Terminal() {
		return domain.CancelAlreadyDone, nil
	}
	now := s.timestamp()
	job.Status = domain.JobStatusCancelled
	job.Error = domain.CancelledMessage
	job.CompletedAt = &now
	return domain.CancelApplied, nil
}

// GetStatus returns the polling snapshot; unknown ids read as failed.
func (s *Store) GetStatus(_ context.Context, jobID string) (domain.StatusSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.MissingJobSnapshot(), nil
	}
	return job.Snapshot(), nil
}

// GetJob returns a copy of the job.
func (s *Store) GetJob(_ context.Context, jobID string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, domain.ErrJobNotFound
	}
	return copyJob(job), nil
}

// ListJobs returns the user's jobs, newest first.
func (s *Store) ListJobs(_ context.Context, userID string, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.UserID == userID {
			out = append(out, copyJob(job))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSteps returns the job's steps in pipeline order.
func (s *Store) ListSteps(_ context.Context, jobID string) ([]domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.JobStep
	for _, step := range s.steps {
		if step.JobID == jobID {
			out = append(out, *step)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out, nil
}

// ReconcilePrediction applies a provider status change to the first step
// recorded for the prediction.
func (s *Store) ReconcilePrediction(_ context.Context, predictionID string, update domain.PredictionUpdate) (domain.JobStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, step := range s.steps {
		if predictionID == "" || step.PredictionID != predictionID {
			continue
		}
		switch update.Status {
		case domain.PredictionSucceeded:
			output, err := mergeOutput(step.Output, map[string]any{"result": update.Output})
			if err != nil {
				return domain.JobStep{}, err
			}
			step.Status = domain.StepCompleted
			step.Output = output
		case domain.PredictionFailed:
			step.Status = domain.StepFailed
			step.Error = update.Error
		}
		return *step, nil
	}
	return domain.JobStep{}, domain.ErrNotFound
}

func mergeOutput(existing json.RawMessage, extra map[string]any) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{"previous": json.RawMessage(existing)}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func copyJob(job *domain.Job) domain.Job {
	out := *job
	out.Input = cloneRaw(job.Input)
	out.Result = cloneRaw(job.Result)
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
