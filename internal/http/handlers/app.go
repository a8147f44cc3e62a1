package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"spritegen/internal/domain"
	"spritegen/internal/generation"
	"spritegen/internal/infra"
	"spritegen/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Generator is the generation surface the handlers drive.
type Generator interface {
	StartSprite(ctx context.Context, userID string, req generation.SpriteRequest) (string, error)
	StartParallax(ctx context.Context, userID string, req generation.ParallaxRequest) (string, error)
	StartDepthSplit(ctx context.Context, userID string, req generation.DepthSplitRequest) (string, error)
	StartParallaxBatch(ctx context.Context, userID string, sceneIDs []string, layerCount int) ([]string, error)
	Cancel(ctx context.Context, userID, jobID string) (generation.CancelResult, error)
	Status(ctx context.Context, userID, jobID string) (domain.StatusSnapshot, error)
	Job(ctx context.Context, userID, jobID string) (domain.Job, error)
	Steps(ctx context.Context, userID, jobID string) ([]domain.JobStep, error)
	Jobs(ctx context.Context, userID string, limit int) ([]domain.Job, error)
	Balance(ctx context.Context, userID string) (int, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
	ReconcilePrediction(ctx context.Context, predictionID string, update domain.PredictionUpdate) (domain.JobStep, error)
}

// Options configures an App.
type Options struct {
	Generation    Generator
	WebhookSecret string
	Logger        *infra.Logger
	// Ready reports whether backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

type App struct {
	Gen           Generator
	WebhookSecret string
	Logger        *infra.Logger
	Ready         func(ctx context.Context) error
}

func NewApp(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &App{
		Gen:           opts.Generation,
		WebhookSecret: opts.WebhookSecret,
		Logger:        logger,
		Ready:         opts.Ready,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]errorPayload{"error": {Code: errCode, Message: message}})
}

// fail maps domain errors onto HTTP statuses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrUnknownJobType):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden", "resource belongs to another user")
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("http: request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// requireUser writes 401 and returns "" when the request carries no user.
func (a *App) requireUser(w http.ResponseWriter, r *http.Request) string {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	}
	return userID
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return false
	}
	return true
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}
