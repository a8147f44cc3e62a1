package memory

import (
	"context"

	"github.com/google/uuid"

	"spritegen/internal/domain"
)

// GetBalance returns the balance, or the starting balance when the user has
// no profile yet. It never creates one.
func (s *Store) GetBalance(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[userID]; ok {
		return p.Balance, nil
	}
	return s.startingBalance, nil
}

// Deduct debits amount and records a deduction.
func (s *Store) Deduct(_ context.Context, userID string, amount int, jobID, description string) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profileLocked(userID)
	if p.Balance < amount {
		return p.Balance, domain.ErrInsufficientCredits
	}
	p.Balance -= amount
	s.appendLocked(p, -amount, domain.TransactionDeduction, description, jobID, "")
	return p.Balance, nil
}

// Refund credits amount back for a job owned by userID. At most one refund
// is accepted per job.
func (s *Store) Refund(_ context.Context, userID string, amount int, jobID, description string) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.UserID != userID {
		return 0, domain.ErrJobNotFound
	}
	for _, tx := range s.transactions {
		if tx.JobID == jobID && tx.Type == domain.TransactionRefund {
			return 0, domain.ErrAlreadyRefunded
		}
	}
	p := s.profileLocked(userID)
	p.Balance += amount
	s.appendLocked(p, amount, domain.TransactionRefund, description, jobID, "")
	return p.Balance, nil
}

// Fulfill credits a purchase once per payment id.
func (s *Store) Fulfill(_ context.Context, userID string, amount int, paymentID, description string) (domain.FulfillResult, error) {
	if amount <= 0 {
		return domain.FulfillResult{}, domain.ErrInvalidAmount
	}
	if paymentID == "" {
		return domain.FulfillResult{}, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range s.transactions {
		if tx.Type == domain.TransactionPurchase && tx.PaymentID == paymentID {
			balance := s.startingBalance
			if p, ok := s.profiles[tx.UserID]; ok {
				balance = p.Balance
			}
			return domain.FulfillResult{AlreadyProcessed: true, Balance: balance}, nil
		}
	}
	p := s.profileLocked(userID)
	p.Balance += amount
	s.appendLocked(p, amount, domain.TransactionPurchase, description, "", paymentID)
	return domain.FulfillResult{Balance: p.Balance}, nil
}

// ListTransactions returns the newest transactions first.
func (s *Store) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.CreditTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		tx := s.transactions[i]
		if tx.UserID != userID {
			continue
		}
		out = append(out, tx)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Profile returns a copy of the stored profile.
func (s *Store) Profile(userID string) (domain.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, false
	}
	return *p, true
}

func (s *Store) profileLocked(userID string) *domain.Profile {
	if p, ok := s.profiles[userID]; ok {
		return p
	}
	now := s.timestamp()
	p := &domain.Profile{
		UserID:         userID,
		Balance:        s.startingBalance,
		OpeningBalance: s.startingBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.profiles[userID] = p
	return p
}

func (s *Store) appendLocked(p *domain.Profile, amount int, kind domain.TransactionType, description, jobID, paymentID string) {
	now := s.timestamp()
	p.UpdatedAt = now
	s.transactions = append(s.transactions, domain.CreditTransaction{
		ID:           uuid.NewString(),
		UserID:       p.UserID,
		Amount:       amount,
		Type:         kind,
		Description:  description,
		JobID:        jobID,
		PaymentID:    paymentID,
		BalanceAfter: p.Balance,
		CreatedAt:    now,
	})
}
