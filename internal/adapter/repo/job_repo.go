package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/sqlinline"
)

// JobStorePG implements domain.JobStore.
type JobStorePG struct {
	db infra.TxExecutor
}

// NewJobStore creates a job store backed by PostgreSQL.
func NewJobStore(db infra.TxExecutor) *JobStorePG {
	return &JobStorePG{db: db}
}

// CreateJob inserts a queued job.
func (r *JobStorePG) CreateJob(ctx context.Context, in domain.NewJob) (domain.Job, error) {
	if !in.Type.Valid() {
		return domain.Job{}, domain.ErrUnknownJobType
	}
	job := domain.Job{
		ID:             in.ID,
		UserID:         in.UserID,
		Type:           in.Type,
		Status:         domain.JobStatusQueued,
		Input:          in.Input,
		CreditsCharged: in.CreditsCharged,
		ReferenceID:    in.ReferenceID,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	input := []byte(job.Input)
	if len(input) == 0 {
		input = []byte("{}")
	}
	err := r.db.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		string(job.Type),
		input,
		job.CreditsCharged,
		job.ReferenceID,
	).Scan(&job.CreatedAt)
	if err != nil {
		return domain.Job{}, fmt.Errorf("jobs: insert: %w", err)
	}
	return job, nil
}

// UpdateProgress advances progress under a row lock so the monotonic check
// and the write cannot interleave with another update.
func (r *JobStorePG) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	if progress < 0 || progress > 100 {
		return domain.ErrProgressOutOfRange
	}
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var (
			status  string
			current int
		)
		if err := tx.QueryRow(ctx, sqlinline.QLockJobProgress, jobID).Scan(&status, &current); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrJobNotFound
			}
			return fmt.Errorf("jobs: lock progress: %w", err)
		}
		if domain.JobStatus(status).Terminal() {
			return domain.ErrJobTerminal
		}
		if progress < current {
			return domain.ErrProgressRegression
		}
		if _, err := tx.Exec(ctx, sqlinline.QUpdateJobProgress, jobID, progress, currentStep); err != nil {
			return fmt.Errorf("jobs: update progress: %w", err)
		}
		return nil
	})
}

// AppendStep records a pipeline step.
func (r *JobStorePG) AppendStep(ctx context.Context, in domain.NewStep) (domain.JobStep, error) {
	status := in.Status
	if status == "" {
		status = domain.StepCompleted
	}
	step := domain.JobStep{
		ID:           uuid.NewString(),
		JobID:        in.JobID,
		Stage:        in.Stage,
		Name:         in.Name,
		Order:        in.Order,
		Status:       status,
		Output:       in.Output,
		Error:        in.Error,
		PredictionID: in.PredictionID,
		DurationMS:   in.DurationMS,
	}
	err := r.db.QueryRow(ctx, sqlinline.QInsertJobStep,
		step.ID,
		step.JobID,
		string(step.Stage),
		step.Name,
		step.Order,
		string(step.Status),
		nullableJSON(step.Output),
		step.Error,
		step.PredictionID,
		step.DurationMS,
	).Scan(&step.CreatedAt)
	if err != nil {
		if infra.IsForeignKeyViolation(err) {
			return domain.JobStep{}, domain.ErrJobNotFound
		}
		return domain.JobStep{}, fmt.Errorf("jobs: insert step: %w", err)
	}
	return step, nil
}

// Complete finishes a job; a job that is already terminal is left as is.
func (r *JobStorePG) Complete(ctx context.Context, jobID string, result json.RawMessage) error {
	tag, err := r.db.Exec(ctx, sqlinline.QCompleteJob, jobID, nullableJSON(result))
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := r.exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return nil
}

// Fail marks a job failed, or reports ErrJobTerminal when it already ended.
func (r *JobStorePG) Fail(ctx context.Context, jobID, message string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QFailJob, jobID, message)
	if err != nil {
		return fmt.Errorf("jobs: fail: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := r.exists(ctx, jobID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.ErrJobNotFound
	}
	return domain.ErrJobTerminal
}

// Cancel stops a queued or processing job.
func (r *JobStorePG) Cancel(ctx context.Context, jobID string) (domain.CancelOutcome, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QCancelJob, jobID, domain.CancelledMessage)
	if err != nil {
		return "", fmt.Errorf("jobs: cancel: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return domain.CancelApplied, nil
	}
	exists, err := r.exists(ctx, jobID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", domain.ErrJobNotFound
	}
	return domain.CancelAlreadyDone, nil
}

// GetStatus returns the polling snapshot; unknown ids read as failed.
func (r *JobStorePG) GetStatus(ctx context.Context, jobID string) (domain.StatusSnapshot, error) {
	var (
		snap   domain.StatusSnapshot
		status string
	)
	err := r.db.QueryRow(ctx, sqlinline.QJobStatus, jobID).Scan(&status, &snap.Progress, &snap.CurrentStep, &snap.Error)
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.MissingJobSnapshot(), nil
		}
		return domain.StatusSnapshot{}, fmt.Errorf("jobs: status: %w", err)
	}
	snap.Status = domain.JobStatus(status)
	return snap, nil
}

// GetJob fetches a job by id.
func (r *JobStorePG) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QGetJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return domain.Job{}, domain.ErrJobNotFound
		}
		return domain.Job{}, fmt.Errorf("jobs: get: %w", err)
	}
	return job, nil
}

// ListJobs returns the user's jobs, newest first.
func (r *JobStorePG) ListJobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, sqlinline.QListJobsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: scan: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterate: %w", err)
	}
	return out, nil
}

// ListSteps returns a job's steps in pipeline order.
func (r *JobStorePG) ListSteps(ctx context.Context, jobID string) ([]domain.JobStep, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListJobSteps, jobID)
	if err != nil {
		return nil, fmt.Errorf("jobs: list steps: %w", err)
	}
	defer rows.Close()
	var out []domain.JobStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: scan step: %w", err)
		}
		out = append(out, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs: iterate steps: %w", err)
	}
	return out, nil
}

// ReconcilePrediction applies a provider webhook to the first step recorded
// for predictionID.
func (r *JobStorePG) ReconcilePrediction(ctx context.Context, predictionID string, update domain.PredictionUpdate) (domain.JobStep, error) {
	if predictionID == "" {
		return domain.JobStep{}, domain.ErrNotFound
	}
	var step domain.JobStep
	err := r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		found, err := scanStep(tx.QueryRow(ctx, sqlinline.QLockStepByPrediction, predictionID))
		if err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("jobs: find prediction step: %w", err)
		}
		step = found
		switch update.Status {
		case domain.PredictionSucceeded:
			output, err := mergeStepOutput(step.Output, update.Output)
			if err != nil {
				return err
			}
			step.Status = domain.StepCompleted
			step.Output = output
		case domain.PredictionFailed:
			step.Status = domain.StepFailed
			step.Error = update.Error
		default:
			return nil
		}
		if _, err := tx.Exec(ctx, sqlinline.QUpdateStepFromPrediction, step.ID, string(step.Status), nullableJSON(step.Output), step.Error); err != nil {
			return fmt.Errorf("jobs: update prediction step: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.JobStep{}, err
	}
	return step, nil
}

func (r *JobStorePG) exists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, sqlinline.QJobExists, jobID).Scan(&exists); err != nil {
		return false, fmt.Errorf("jobs: exists: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var (
		job            domain.Job
		jobType        string
		status         string
		input, result  []byte
		started, ended *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&jobType,
		&status,
		&job.Progress,
		&job.CurrentStep,
		&input,
		&result,
		&job.Error,
		&job.CreditsCharged,
		&job.ReferenceID,
		&job.CreatedAt,
		&started,
		&ended,
	); err != nil {
		return domain.Job{}, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Input = nullableRaw(input)
	job.Result = nullableRaw(result)
	job.StartedAt = started
	job.CompletedAt = ended
	return job, nil
}

func scanStep(row rowScanner) (domain.JobStep, error) {
	var (
		step   domain.JobStep
		stage  string
		status string
		output []byte
	)
	if err := row.Scan(
		&step.ID,
		&step.JobID,
		&stage,
		&step.Name,
		&step.Order,
		&status,
		&output,
		&step.Error,
		&step.PredictionID,
		&step.DurationMS,
		&step.CreatedAt,
	); err != nil {
		return domain.JobStep{}, err
	}
	step.Stage = domain.Stage(stage)
	step.Status = domain.StepStatus(status)
	step.Output = nullableRaw(output)
	return step, nil
}

func mergeStepOutput(existing json.RawMessage, result []string) (json.RawMessage, error) {
	merged := map[string]any{}
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &merged); err != nil {
			merged = map[string]any{"previous": existing}
		}
	}
	merged["result"] = result
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("jobs: merge step output: %w", err)
	}
	return out, nil
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullableRaw(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

var _ domain.JobStore = (*JobStorePG)(nil)
