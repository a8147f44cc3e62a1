package domain

import (
	"context"
	"encoding/json"
)

// Ledger is the credit accounting contract. Every mutation is atomic per
// user and appends exactly one transaction.
type Ledger interface {
	GetBalance(ctx context.Context, userID string) (int, error)
	Deduct(ctx context.Context, userID string, amount int, jobID, description string) (int, error)
	Refund(ctx context.Context, userID string, amount int, jobID, description string) (int, error)
	Fulfill(ctx context.Context, userID string, amount int, paymentID, description string) (FulfillResult, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// JobStore persists jobs and their steps.
type JobStore interface {
	CreateJob(ctx context.Context, job NewJob) (Job, error)
	UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error
	AppendStep(ctx context.Context, step NewStep) (JobStep, error)
	Complete(ctx context.Context, jobID string, result json.RawMessage) error
	Fail(ctx context.Context, jobID, message string) error
	Cancel(ctx context.Context, jobID string) (CancelOutcome, error)
	GetStatus(ctx context.Context, jobID string) (StatusSnapshot, error)
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, userID string, limit int) ([]Job, error)
	ListSteps(ctx context.Context, jobID string) ([]JobStep, error)
	ReconcilePrediction(ctx context.Context, predictionID string, update PredictionUpdate) (JobStep, error)
}

// EntityStore reads and writes the characters and scenes pipelines work on.
type EntityStore interface {
	CreateCharacter(ctx context.Context, c Character) (Character, error)
	GetCharacter(ctx context.Context, id string) (Character, error)
	SetCharacterCleanImage(ctx context.Context, id, key string) error
	SaveAnimations(ctx context.Context, animations []Animation) error
	CreateScene(ctx context.Context, s Scene) (Scene, error)
	GetScene(ctx context.Context, id string) (Scene, error)
	SetSceneLayers(ctx context.Context, id string, layers []SceneLayer) error
	SetScenePreview(ctx context.Context, id, key string) error
}
