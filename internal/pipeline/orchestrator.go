package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/providers/replicate"
	"spritegen/internal/scheduler"
)

// Models is the provider surface the stages call.
type Models interface {
	RemoveBackground(ctx context.Context, imageURL string) (replicate.Prediction, error)
	StyleTransfer(ctx context.Context, imageURL, prompt string) (replicate.Prediction, error)
	GenerateSpriteSheet(ctx context.Context, req replicate.SpriteSheetRequest) (replicate.Prediction, error)
	Upscale(ctx context.Context, imageURL string) (replicate.Prediction, error)
	GenerateScene(ctx context.Context, prompt, aspectRatio string) (replicate.Prediction, error)
	EstimateDepth(ctx context.Context, imageURL string) (replicate.Prediction, error)
}

// Blobs stores generated images.
type Blobs interface {
	Import(ctx context.Context, key, sourceURL string) (string, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Jobs       domain.JobStore
	Ledger     domain.Ledger
	Entities   domain.EntityStore
	Models     Models
	Blobs      Blobs
	Dispatcher scheduler.Dispatcher
	Logger     *infra.Logger
	Now        func() time.Time
}

// errCancelled unwinds a run that observed a user cancellation.
var errCancelled = errors.New("pipeline: job cancelled")

type runner func(ctx context.Context, r *run) error

// Orchestrator executes queued jobs stage by stage.
type Orchestrator struct {
	jobs       domain.JobStore
	ledger     domain.Ledger
	entities   domain.EntityStore
	models     Models
	blobs      Blobs
	dispatcher scheduler.Dispatcher
	logger     *infra.Logger
	now        func() time.Time
	runners    map[domain.JobType]runner
}

// NewOrchestrator wires an Orchestrator.
func NewOrchestrator(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	o := &Orchestrator{
		jobs:       d.Jobs,
		ledger:     d.Ledger,
		entities:   d.Entities,
		models:     d.Models,
		blobs:      d.Blobs,
		dispatcher: d.Dispatcher,
		logger:     logger,
		now:        now,
	}
	o.runners = map[domain.JobType]runner{
		domain.JobTypeSprite:     o.runSprite,
		domain.JobTypeParallax:   o.runParallax,
		domain.JobTypeDepthSplit: o.runDepthSplit,
	}
	return o
}

// Run executes the job end to end. A job that fails is marked failed and
// refunded before the error is returned; a cancelled job returns nil.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("pipeline: load job %s: %w", jobID, err)
	}
	log := o.logger.With().Str("job_id", job.ID).Str("job_type", string(job.Type)).Logger()
	if job.Status.Terminal() {
		log.Info().Str("status", string(job.Status)).Msg("pipeline: job already finished, skipping")
		return nil
	}

	fn, ok := o.runners[job.Type]
	if !ok {
		cause := fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type)
		o.compensate(ctx, job, cause)
		return cause
	}

	started := o.now()
	log.Info().Msg("pipeline: job started")
	r := &run{o: o, job: job, log: log}
	err = fn(ctx, r)
	switch {
	case err == nil:
		log.Info().Dur("elapsed", o.now().Sub(started)).Int("warnings", len(r.warnings)).Msg("pipeline: job completed")
		return nil
	case errors.Is(err, errCancelled):
		log.Info().Msg("pipeline: job cancelled, stopping")
		return nil
	default:
		log.Error().Err(err).Msg("pipeline: job failed")
		o.compensate(ctx, job, err)
		return err
	}
}

// Handle routes a scheduler task to Run or RunPreview.
func (o *Orchestrator) Handle(ctx context.Context, task scheduler.Task) error {
	switch task.Kind {
	case scheduler.KindRunJob:
		return o.Run(ctx, task.JobID)
	case scheduler.KindCompositePreview:
		return o.RunPreview(ctx, task.SceneID)
	default:
		return fmt.Errorf("pipeline: unsupported task kind %q", task.Kind)
	}
}

// compensate marks the job failed and returns its credits exactly once.
// Errors are logged and swallowed.
func (o *Orchestrator) compensate(ctx context.Context, job domain.Job, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()

	err := o.jobs.Fail(ctx, job.ID, cause.Error())
	if errors.Is(err, domain.ErrJobTerminal) {
		log.Info().Msg("pipeline: job already terminal, refund skipped")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("pipeline: mark job failed")
		return
	}
	if job.CreditsCharged <= 0 {
		return
	}
	balance, err := o.ledger.Refund(ctx, job.UserID, job.CreditsCharged, job.ID, domain.RefundFailedDescription)
	switch {
	case errors.Is(err, domain.ErrAlreadyRefunded):
		log.Info().Msg("pipeline: job already refunded")
	case err != nil:
		log.Error().Err(err).Int("amount", job.CreditsCharged).Msg("pipeline: refund failed")
	default:
		log.Info().Int("amount", job.CreditsCharged).Int("balance", balance).Msg("pipeline: credits refunded")
	}
}

// run is the state of one job execution.
type run struct {
	o        *Orchestrator
	job      domain.Job
	log      zerolog.Logger
	warnings []string
}

func (r *run) decodeInput(v any) error {
	if len(r.job.Input) == 0 {
		return fmt.Errorf("%w: job has no input", domain.ErrInvalidInput)
	}
	if err := json.Unmarshal(r.job.Input, v); err != nil {
		return fmt.Errorf("%w: decode job input: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

// checkpoint stops the run when the job was cancelled.
func (r *run) checkpoint(ctx context.Context) error {
	job, err := r.o.jobs.GetJob(ctx, r.job.ID)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if job.Status.Terminal() {
		return errCancelled
	}
	return nil
}

func (r *run) progress(ctx context.Context, progress int, step string) error {
	err := r.o.jobs.UpdateProgress(ctx, r.job.ID, progress, step)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrJobTerminal):
		return errCancelled
	case errors.Is(err, domain.ErrProgressRegression):
		r.log.Warn().Int("progress", progress).Str("step", step).Msg("pipeline: progress regression ignored")
		return nil
	default:
		return fmt.Errorf("update progress: %w", err)
	}
}

func (r *run) step(ctx context.Context, s domain.NewStep) error {
	s.JobID = r.job.ID
	if s.Status == "" {
		s.Status = domain.StepCompleted
	}
	if _, err := r.o.jobs.AppendStep(ctx, s); err != nil {
		return fmt.Errorf("append step %s: %w", s.Name, err)
	}
	return nil
}

// settle applies a stage outcome: success continues, degraded records a
// warning and continues, fatal aborts the run.
func (r *run) settle(stage domain.Stage, res StageResult) error {
	switch res.Outcome {
	case Success:
		return nil
	case Degraded:
		note := res.Note
		if note == "" && res.Err != nil {
			note = res.Err.Error()
		}
		r.warnings = append(r.warnings, fmt.Sprintf("%s: %s", stage, note))
		r.log.Warn().Err(res.Err).Str("stage", string(stage)).Msg("pipeline: stage degraded")
		return nil
	case Fatal:
		if res.Err == nil {
			return fmt.Errorf("%s failed", stage)
		}
		return fmt.Errorf("%s: %w", stage, res.Err)
	default:
		return fmt.Errorf("%s: unknown outcome %d", stage, res.Outcome)
	}
}

func (r *run) since(start time.Time) int64 {
	return r.o.now().Sub(start).Milliseconds()
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
