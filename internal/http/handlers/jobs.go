package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"spritegen/internal/domain"
	"spritegen/internal/i18n"
	"spritegen/internal/middleware"
)

type jobView struct {
	ID             string           `json:"id"`
	Type           domain.JobType   `json:"type"`
	Status         domain.JobStatus `json:"status"`
	Progress       int              `json:"progress"`
	CurrentStep    string           `json:"currentStep,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreditsCharged int              `json:"creditsCharged"`
	ReferenceID    string           `json:"referenceId,omitempty"`
	Result         json.RawMessage  `json:"result,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	StartedAt      *time.Time       `json:"startedAt,omitempty"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

func newJobView(job domain.Job, locale string) jobView {
	return jobView{
		ID:             job.ID,
		Type:           job.Type,
		Status:         job.Status,
		Progress:       job.Progress,
		CurrentStep:    job.CurrentStep,
		Error:          i18n.Localize(locale, job.Error),
		CreditsCharged: job.CreditsCharged,
		ReferenceID:    job.ReferenceID,
		Result:         job.Result,
		CreatedAt:      job.CreatedAt,
		StartedAt:      job.StartedAt,
		CompletedAt:    job.CompletedAt,
	}
}

type stepView struct {
	ID           string            `json:"id"`
	Stage        domain.Stage      `json:"stage"`
	Name         string            `json:"name"`
	Order        int               `json:"order"`
	Status       domain.StepStatus `json:"status"`
	Output       json.RawMessage   `json:"output,omitempty"`
	Error        string            `json:"error,omitempty"`
	PredictionID string            `json:"predictionId,omitempty"`
	DurationMS   int64             `json:"durationMs"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// JobStatus is the polling endpoint.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	snap, err := a.Gen.Status(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap.Error = i18n.Localize(middleware.LocaleFromContext(r.Context()), snap.Error)
	a.json(w, http.StatusOK, snap)
}

func (a *App) JobDetail(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	job, err := a.Gen.Job(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, newJobView(job, middleware.LocaleFromContext(r.Context())))
}

func (a *App) JobSteps(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	steps, err := a.Gen.Steps(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]stepView, 0, len(steps))
	for _, s := range steps {
		items = append(items, stepView{
			ID:           s.ID,
			Stage:        s.Stage,
			Name:         s.Name,
			Order:        s.Order,
			Status:       s.Status,
			Output:       s.Output,
			Error:        s.Error,
			PredictionID: s.PredictionID,
			DurationMS:   s.DurationMS,
			CreatedAt:    s.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	jobs, err := a.Gen.Jobs(r.Context(), userID, queryLimit(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	items := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, newJobView(job, locale))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	res, err := a.Gen.Cancel(r.Context(), userID, chi.URLParam(r, "jobID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, res)
}
