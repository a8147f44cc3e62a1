package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates supported generation pipelines.
type JobType string

const (
	JobTypeSprite     JobType = "sprite-generation"
	JobTypeParallax   JobType = "parallax-generation"
	JobTypeDepthSplit JobType = "depth-split"
)

// Valid reports whether t is one of the known pipelines.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeSprite, JobTypeParallax, JobTypeDepthSplit:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// CancelledMessage is stored as the job error when a user cancels.
const CancelledMessage = "Cancelled by user"

// Job tracks one generation run from request to terminal state.
type Job struct {
	ID             string
	UserID         string
	Type           JobType
	Status         JobStatus
	Progress       int
	CurrentStep    string
	Input          json.RawMessage
	Result         json.RawMessage
	Error          string
	CreditsCharged int
	ReferenceID    string
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
}

// NewJob carries the fields fixed at creation time.
type NewJob struct {
	ID             string
	UserID         string
	Type           JobType
	Input          json.RawMessage
	CreditsCharged int
	ReferenceID    string
}

// StatusSnapshot is what polling clients read.
type StatusSnapshot struct {
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"currentStep,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// MissingJobSnapshot is reported for ids that resolve to nothing.
func MissingJobSnapshot() StatusSnapshot {
	return StatusSnapshot{Status: JobStatusFailed, Error: "Job not found"}
}

// Snapshot projects the polling view of the job.
func (j Job) Snapshot() StatusSnapshot {
	return StatusSnapshot{
		Status:      j.Status,
		Progress:    j.Progress,
		CurrentStep: j.CurrentStep,
		Error:       j.Error,
	}
}

// CancelOutcome reports what Cancel did.
type CancelOutcome string

const (
	CancelApplied     CancelOutcome = "cancelled"
	CancelAlreadyDone CancelOutcome = "already_done"
)

// SpriteJobInput is the persisted request of a sprite job.
type SpriteJobInput struct {
	CharacterID string   `json:"characterId"`
	Actions     []string `json:"actions"`
	Directions  []string `json:"directions"`
}

// ParallaxJobInput is the persisted request of a parallax job.
type ParallaxJobInput struct {
	SceneID      string `json:"sceneId"`
	LayerCount   int    `json:"layerCount"`
	DeviceWidth  int    `json:"deviceWidth,omitempty"`
	DeviceHeight int    `json:"deviceHeight,omitempty"`
}

// DepthSplitJobInput is the persisted request of a depth-split job.
type DepthSplitJobInput struct {
	SceneID    string `json:"sceneId"`
	LayerCount int    `json:"layerCount"`
}

// SpriteResult is stored on a completed sprite job.
type SpriteResult struct {
	Animations []AnimationSummary `json:"animations"`
	Upscaled   bool               `json:"upscaled"`
	Warnings   []string           `json:"warnings,omitempty"`
}

// AnimationSummary describes one generated sheet in a sprite result.
type AnimationSummary struct {
	Action    string `json:"action"`
	Direction string `json:"direction"`
	SheetKey  string `json:"sheetKey"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FPS       int    `json:"fps"`
	Upscaled  bool   `json:"upscaled"`
}

// ParallaxResult is stored on completed parallax and depth-split jobs.
type ParallaxResult struct {
	Layers   []SceneLayer `json:"layers"`
	Warnings []string     `json:"warnings,omitempty"`
}
