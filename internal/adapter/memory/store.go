// Package memory provides in-process implementations of the ledger, job
// store and entity store. It backs STORE_DRIVER=memory and the tests of
// packages that sit above persistence.
package memory

import (
	"sync"
	"time"

	"spritegen/internal/domain"
)

// Store keeps every record behind one mutex, so each operation is atomic.
type Store struct {
	mu sync.Mutex

	profiles     map[string]*domain.Profile
	transactions []domain.CreditTransaction
	jobs         map[string]*domain.Job
	steps        []*domain.JobStep
	characters   map[string]domain.Character
	scenes       map[string]domain.Scene
	animations   []domain.Animation

	startingBalance int
	now             func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithStartingBalance overrides the balance granted to new profiles.
func WithStartingBalance(balance int) Option {
	return func(s *Store) { s.startingBalance = balance }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		profiles:        make(map[string]*domain.Profile),
		jobs:            make(map[string]*domain.Job),
		characters:      make(map[string]domain.Character),
		scenes:          make(map[string]domain.Scene),
		startingBalance: domain.DefaultStartingBalance,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

var (
	_ domain.Ledger      = (*Store)(nil)
	_ domain.JobStore    = (*Store)(nil)
	_ domain.EntityStore = (*Store)(nil)
)
