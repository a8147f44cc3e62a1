package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spritegen/internal/domain"
)

func TestDeductCreatesProfileLazily(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultStartingBalance, balance)
	_, exists := s.Profile("u1")
	assert.False(t, exists, "GetBalance must not create a profile")

	balance, err = s.Deduct(ctx, "u1", 10, "job-1", "Sprite generation")
	require.NoError(t, err)
	assert.Equal(t, 90, balance)

	txs, err := s.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionDeduction, txs[0].Type)
	assert.Equal(t, -10, txs[0].Amount)
	assert.Equal(t, 90, txs[0].BalanceAfter)
}

func TestDeductRejections(t *testing.T) {
	ctx := context.Background()
	s := NewStore(WithStartingBalance(5))

	_, err := s.Deduct(ctx, "u1", 0, "", "zero")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = s.Deduct(ctx, "u1", 6, "", "too much")
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	txs, err := s.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestRefundRequiresOwnedJobAndHappensOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	_, err := s.Refund(ctx, "u1", 4, "missing", "refund")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	job, err := s.CreateJob(ctx, domain.NewJob{UserID: "u1", Type: domain.JobTypeSprite, CreditsCharged: 4})
	require.NoError(t, err)
	_, err = s.Deduct(ctx, "u1", 4, job.ID, "charge")
	require.NoError(t, err)

	_, err = s.Refund(ctx, "u2", 4, job.ID, "refund")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	balance, err := s.Refund(ctx, "u1", 4, job.ID, domain.RefundFailedDescription)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	_, err = s.Refund(ctx, "u1", 4, job.ID, domain.RefundFailedDescription)
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
}

func TestFulfillIsIdempotentByPaymentID(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	first, err := s.Fulfill(ctx, "u1", 40, "pay_123", "standard pack")
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.Equal(t, 140, first.Balance)

	second, err := s.Fulfill(ctx, "u1", 40, "pay_123", "standard pack")
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, 140, second.Balance)

	txs, err := s.ListTransactions(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Deduct(ctx, "u1", 3, "", "parallel"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, err := s.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 33, succeeded)
	assert.Equal(t, 1, balance)
}
