package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/scheduler"
)

// SpriteRequest asks for one sheet per action and direction pair.
type SpriteRequest struct {
	CharacterID string   `json:"characterId"`
	Actions     []string `json:"actions"`
	Directions  []string `json:"directions"`
}

// ParallaxRequest asks for a layered scene.
type ParallaxRequest struct {
	SceneID      string `json:"sceneId"`
	LayerCount   int    `json:"layerCount"`
	DeviceWidth  int    `json:"deviceWidth"`
	DeviceHeight int    `json:"deviceHeight"`
}

// DepthSplitRequest asks for a depth split of a scene's source image.
type DepthSplitRequest struct {
	SceneID    string `json:"sceneId"`
	LayerCount int    `json:"layerCount"`
}

// CancelResult reports what a cancel request did.
type CancelResult struct {
	Outcome  domain.CancelOutcome `json:"status"`
	Refunded int                  `json:"refunded"`
	Balance  int                  `json:"balance,omitempty"`
}

// Options configures a Service.
type Options struct {
	Jobs       domain.JobStore
	Ledger     domain.Ledger
	Entities   domain.EntityStore
	Dispatcher scheduler.Dispatcher
	Logger     *infra.Logger
	Now        func() time.Time
	NewID      func() string
}

// Service is the caller side of generation: it prices requests, charges
// credits, creates jobs and hands them to the scheduler.
type Service struct {
	jobs       domain.JobStore
	ledger     domain.Ledger
	entities   domain.EntityStore
	dispatcher scheduler.Dispatcher
	logger     *infra.Logger
	now        func() time.Time
	newID      func() string
}

// NewService wires a Service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return &Service{
		jobs:       opts.Jobs,
		ledger:     opts.Ledger,
		entities:   opts.Entities,
		dispatcher: opts.Dispatcher,
		logger:     logger,
		now:        now,
		newID:      newID,
	}
}

// StartSprite charges and queues a sprite job for a character the user owns.
func (s *Service) StartSprite(ctx context.Context, userID string, req SpriteRequest) (string, error) {
	if err := validateSprite(req); err != nil {
		return "", err
	}
	character, err := s.entities.GetCharacter(ctx, req.CharacterID)
	if err != nil {
		return "", fmt.Errorf("generation: load character: %w", err)
	}
	if character.UserID != userID {
		return "", fmt.Errorf("generation: character %s: %w", req.CharacterID, domain.ErrUnauthorized)
	}
	input := domain.SpriteJobInput{CharacterID: character.ID, Actions: req.Actions, Directions: req.Directions}
	cost := domain.SpriteCost(len(req.Actions), len(req.Directions))
	desc := fmt.Sprintf("Sprite generation: %d animations", len(req.Actions)*len(req.Directions))
	return s.start(ctx, userID, domain.JobTypeSprite, input, cost, character.ID, desc)
}

// StartParallax charges and queues a parallax job.
func (s *Service) StartParallax(ctx context.Context, userID string, req ParallaxRequest) (string, error) {
	layers := req.LayerCount
	if layers == 0 {
		layers = domain.DefaultParallaxLayers
	}
	if layers < domain.MinLayers || layers > domain.MaxLayers {
		return "", fmt.Errorf("%w: layer count must be between %d and %d", domain.ErrInvalidInput, domain.MinLayers, domain.MaxLayers)
	}
	if req.DeviceWidth < 0 || req.DeviceHeight < 0 {
		return "", fmt.Errorf("%w: device size must not be negative", domain.ErrInvalidInput)
	}
	scene, err := s.ownedScene(ctx, userID, req.SceneID)
	if err != nil {
		return "", err
	}
	input := domain.ParallaxJobInput{
		SceneID:      scene.ID,
		LayerCount:   layers,
		DeviceWidth:  req.DeviceWidth,
		DeviceHeight: req.DeviceHeight,
	}
	desc := fmt.Sprintf("Parallax generation: %d layers", layers)
	return s.start(ctx, userID, domain.JobTypeParallax, input, domain.ParallaxCost(layers), scene.ID, desc)
}

// StartDepthSplit charges and queues a depth-split job. The scene must
// carry a source image.
func (s *Service) StartDepthSplit(ctx context.Context, userID string, req DepthSplitRequest) (string, error) {
	layers := req.LayerCount
	if layers == 0 {
		layers = domain.DefaultSplitLayers
	}
	if layers < domain.MinLayers || layers > domain.MaxLayers {
		return "", fmt.Errorf("%w: layer count must be between %d and %d", domain.ErrInvalidInput, domain.MinLayers, domain.MaxLayers)
	}
	scene, err := s.ownedScene(ctx, userID, req.SceneID)
	if err != nil {
		return "", err
	}
	if scene.SourceImageKey == "" {
		return "", fmt.Errorf("%w: scene has no source image", domain.ErrInvalidInput)
	}
	input := domain.DepthSplitJobInput{SceneID: scene.ID, LayerCount: layers}
	return s.start(ctx, userID, domain.JobTypeDepthSplit, input, domain.DepthSplitCost, scene.ID, "Depth split")
}

// StartParallaxBatch starts one parallax job per scene. It stops at the
// first failure and returns the ids started so far with the error.
func (s *Service) StartParallaxBatch(ctx context.Context, userID string, sceneIDs []string, layerCount int) ([]string, error) {
	if len(sceneIDs) == 0 {
		return nil, fmt.Errorf("%w: no scenes given", domain.ErrInvalidInput)
	}
	started := make([]string, 0, len(sceneIDs))
	for _, id := range sceneIDs {
		jobID, err := s.StartParallax(ctx, userID, ParallaxRequest{SceneID: id, LayerCount: layerCount})
		if err != nil {
			return started, fmt.Errorf("generation: scene %s: %w", id, err)
		}
		started = append(started, jobID)
	}
	return started, nil
}

// Cancel stops a job the user owns and refunds its charge. A job that is
// already cancelled gets the refund re-attempted, so a cancel whose refund
// did not commit is settled by the next request; the ledger refunds a job
// at most once.
func (s *Service) Cancel(ctx context.Context, userID, jobID string) (CancelResult, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return CancelResult{}, err
	}
	outcome, err := s.jobs.Cancel(ctx, job.ID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("generation: cancel job: %w", err)
	}
	res := CancelResult{Outcome: outcome}
	if job.CreditsCharged <= 0 {
		return res, nil
	}
	if outcome == domain.CancelAlreadyDone {
		current, err := s.jobs.GetJob(ctx, job.ID)
		if err != nil {
			return res, fmt.Errorf("generation: reload cancelled job: %w", err)
		}
		if current.Status != domain.JobStatusCancelled {
			return res, nil
		}
	}

	log := s.logger.With().Str("job_id", job.ID).Str("user_id", userID).Logger()
	balance, err := s.ledger.Refund(ctx, userID, job.CreditsCharged, job.ID, domain.RefundCancelledDescription)
	switch {
	case errors.Is(err, domain.ErrAlreadyRefunded):
		log.Debug().Msg("generation: cancelled job was already refunded")
		return res, nil
	case err != nil:
		log.Error().Err(err).Msg("generation: refund cancelled job")
		return res, fmt.Errorf("generation: refund cancelled job: %w", err)
	}
	log.Info().Int("amount", job.CreditsCharged).Int("balance", balance).Msg("generation: job cancelled and refunded")
	res.Refunded = job.CreditsCharged
	res.Balance = balance
	return res, nil
}

// Status returns the polling snapshot of a job the user owns. Unknown ids
// resolve to the missing-job snapshot.
func (s *Service) Status(ctx context.Context, userID, jobID string) (domain.StatusSnapshot, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if errors.Is(err, domain.ErrJobNotFound) {
		return domain.MissingJobSnapshot(), nil
	}
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return job.Snapshot(), nil
}

// Job returns a job the user owns.
func (s *Service) Job(ctx context.Context, userID, jobID string) (domain.Job, error) {
	return s.ownedJob(ctx, userID, jobID)
}

// Steps lists the steps of a job the user owns.
func (s *Service) Steps(ctx context.Context, userID, jobID string) ([]domain.JobStep, error) {
	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return s.jobs.ListSteps(ctx, job.ID)
}

// Jobs lists the user's jobs, newest first.
func (s *Service) Jobs(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	return s.jobs.ListJobs(ctx, userID, clampLimit(limit))
}

// Balance returns the user's credit balance.
func (s *Service) Balance(ctx context.Context, userID string) (int, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// Transactions lists the user's ledger entries, newest first.
func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	return s.ledger.ListTransactions(ctx, userID, clampLimit(limit))
}

// ReconcilePrediction applies a provider callback to the step waiting on it.
func (s *Service) ReconcilePrediction(ctx context.Context, predictionID string, update domain.PredictionUpdate) (domain.JobStep, error) {
	if strings.TrimSpace(predictionID) == "" {
		return domain.JobStep{}, fmt.Errorf("%w: prediction id required", domain.ErrInvalidInput)
	}
	return s.jobs.ReconcilePrediction(ctx, predictionID, update)
}

// start charges first so the price is held before any provider call, then
// creates the job under the id the deduction already references.
func (s *Service) start(ctx context.Context, userID string, jobType domain.JobType, input any, cost int, referenceID, description string) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("generation: encode input: %w", err)
	}
	jobID := s.newID()
	log := s.logger.With().Str("job_id", jobID).Str("user_id", userID).Str("job_type", string(jobType)).Logger()

	balance, err := s.ledger.Deduct(ctx, userID, cost, jobID, description)
	if err != nil {
		return "", fmt.Errorf("generation: charge %d credits: %w", cost, err)
	}
	if _, err := s.jobs.CreateJob(ctx, domain.NewJob{
		ID:             jobID,
		UserID:         userID,
		Type:           jobType,
		Input:          raw,
		CreditsCharged: cost,
		ReferenceID:    referenceID,
	}); err != nil {
		log.Error().Err(err).Int("amount", cost).Msg("generation: job not created after deduction")
		return "", fmt.Errorf("generation: create job: %w", err)
	}

	task := scheduler.RunJob(jobID)
	task.EnqueuedAt = s.now()
	if err := s.dispatcher.Enqueue(ctx, task); err != nil {
		// the job exists and is charged; fail it so the refund goes through once
		s.abandon(ctx, jobID, userID, cost, err)
		return "", fmt.Errorf("generation: enqueue job: %w", err)
	}
	log.Info().Int("cost", cost).Int("balance", balance).Msg("generation: job queued")
	return jobID, nil
}

func (s *Service) abandon(ctx context.Context, jobID, userID string, cost int, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := s.logger.With().Str("job_id", jobID).Str("user_id", userID).Logger()
	if err := s.jobs.Fail(ctx, jobID, "enqueue failed: "+cause.Error()); err != nil {
		log.Error().Err(err).Msg("generation: mark unqueued job failed")
		return
	}
	if _, err := s.ledger.Refund(ctx, userID, cost, jobID, domain.RefundFailedDescription); err != nil {
		log.Error().Err(err).Msg("generation: refund unqueued job")
	}
}

func (s *Service) ownedScene(ctx context.Context, userID, sceneID string) (domain.Scene, error) {
	if strings.TrimSpace(sceneID) == "" {
		return domain.Scene{}, fmt.Errorf("%w: scene id required", domain.ErrInvalidInput)
	}
	scene, err := s.entities.GetScene(ctx, sceneID)
	if err != nil {
		return domain.Scene{}, fmt.Errorf("generation: load scene: %w", err)
	}
	if scene.UserID != userID {
		return domain.Scene{}, fmt.Errorf("generation: scene %s: %w", sceneID, domain.ErrUnauthorized)
	}
	return scene, nil
}

func (s *Service) ownedJob(ctx context.Context, userID, jobID string) (domain.Job, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.UserID != userID {
		return domain.Job{}, fmt.Errorf("generation: job %s: %w", jobID, domain.ErrUnauthorized)
	}
	return job, nil
}

func validateSprite(req SpriteRequest) error {
	if strings.TrimSpace(req.CharacterID) == "" {
		return fmt.Errorf("%w: character id required", domain.ErrInvalidInput)
	}
	if len(req.Actions) == 0 || len(req.Directions) == 0 {
		return fmt.Errorf("%w: at least one action and one direction required", domain.ErrInvalidInput)
	}
	seen := map[string]bool{}
	for _, a := range req.Actions {
		if !domain.ValidAction(a) {
			return fmt.Errorf("%w: unknown action %q", domain.ErrInvalidInput, a)
		}
		if seen["a:"+a] {
			return fmt.Errorf("%w: duplicate action %q", domain.ErrInvalidInput, a)
		}
		seen["a:"+a] = true
	}
	for _, d := range req.Directions {
		if !domain.ValidDirection(d) {
			return fmt.Errorf("%w: unknown direction %q", domain.ErrInvalidInput, d)
		}
		if seen["d:"+d] {
			return fmt.Errorf("%w: duplicate direction %q", domain.ErrInvalidInput, d)
		}
		seen["d:"+d] = true
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
