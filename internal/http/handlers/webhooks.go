package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"spritegen/internal/domain"
	"spritegen/internal/providers/replicate"
)

// ReplicateWebhook reconciles a finished prediction with the step waiting
// on it. Unknown predictions are acknowledged so the provider stops retrying.
func (a *App) ReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if a.WebhookSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.WebhookSecret)) != 1 {
		a.error(w, http.StatusForbidden, "forbidden", "invalid webhook token")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	pred, err := replicate.DecodePrediction(body)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid prediction payload")
		return
	}
	log := a.Logger.With().Str("prediction_id", pred.ID).Str("status", pred.Status).Logger()
	if !pred.Terminal() {
		a.json(w, http.StatusAccepted, map[string]bool{"matched": false})
		return
	}

	step, err := a.Gen.ReconcilePrediction(r.Context(), pred.ID, domain.PredictionUpdate{
		Status: pred.Status,
		Output: pred.Output,
		Error:  pred.Error,
	})
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug().Msg("http: webhook for unknown prediction")
		a.json(w, http.StatusOK, map[string]bool{"matched": false})
		return
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	log.Info().Str("job_id", step.JobID).Str("step", step.Name).Msg("http: prediction reconciled")
	a.json(w, http.StatusOK, map[string]any{"matched": true, "stepId": step.ID, "stepStatus": step.Status})
}
