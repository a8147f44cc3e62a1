package domain

import (
	"encoding/json"
	"time"
)

// Stage is the closed set of pipeline stages a step can belong to. The step
// Name carries the free text shown to users, e.g. "sprite-walk-right".
type Stage string

const (
	StageBackgroundRemoval Stage = "bg-removal"
	StageStyleTransfer     Stage = "style-transfer"
	StageSpriteGeneration  Stage = "sprite-generation"
	StageSpritePacking     Stage = "sprite-packing"
	StageFinalize          Stage = "finalize"
	StageLayerGeneration   Stage = "layer-generation"
	StageDepthEstimation   Stage = "depth-estimation"
)

// StepStatus enumerates step states.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// JobStep records the outcome of one pipeline stage or unit.
type JobStep struct {
	ID           string
	JobID        string
	Stage        Stage
	Name         string
	Order        int
	Status       StepStatus
	Output       json.RawMessage
	Error        string
	PredictionID string
	DurationMS   int64
	CreatedAt    time.Time
}

// NewStep carries the fields of a step to append.
type NewStep struct {
	JobID        string
	Stage        Stage
	Name         string
	Order        int
	Status       StepStatus
	Output       json.RawMessage
	Error        string
	PredictionID string
	DurationMS   int64
}

// PredictionUpdate is a provider-side status change for a prediction.
type PredictionUpdate struct {
	Status string
	Output []string
	Error  string
}

// Prediction statuses reported by the provider.
const (
	PredictionSucceeded = "succeeded"
	PredictionFailed    = "failed"
)
