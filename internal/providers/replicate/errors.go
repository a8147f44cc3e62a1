package replicate

import (
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("replicate: status %d", e.StatusCode)
	}
	return fmt.Sprintf("replicate: status %d: %s", e.StatusCode, e.Detail)
}

// Permanent reports whether repeating the request cannot succeed.
func (e *APIError) Permanent() bool {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return false
	}
	return e.StatusCode != http.StatusRequestTimeout && e.StatusCode != http.StatusTooManyRequests
}

// RateLimitError is returned for HTTP 429.
type RateLimitError struct {
	*APIError
	After    time.Duration
	HasAfter bool
}

// RetryAfter returns the server supplied wait, if any.
func (e *RateLimitError) RetryAfter() (time.Duration, bool) {
	return e.After, e.HasAfter
}

func (e *RateLimitError) Unwrap() error { return e.APIError }

// PredictionError is a prediction that settled as failed or canceled.
type PredictionError struct {
	ID      string
	Status  string
	Message string
}

func (e *PredictionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("replicate: prediction %s %s", e.ID, e.Status)
	}
	return fmt.Sprintf("replicate: prediction %s %s: %s", e.ID, e.Status, e.Message)
}
