package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrJobNotFound         = errors.New("job not found")
	ErrAlreadyRefunded     = errors.New("job already refunded")
	ErrProgressRegression  = errors.New("progress cannot decrease")
	ErrProgressOutOfRange  = errors.New("progress must be between 0 and 100")
	ErrJobTerminal         = errors.New("job already finished")
	ErrUnknownJobType      = errors.New("unknown job type")
)
