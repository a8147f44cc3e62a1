package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"spritegen/internal/domain"
	"spritegen/internal/infra"
	"spritegen/internal/sqlinline"
)

// LedgerPG implements domain.Ledger on PostgreSQL. Each mutation runs in one
// transaction that touches the user's profile row first, so concurrent
// mutations for the same user serialize on that row.
type LedgerPG struct {
	db              infra.TxExecutor
	startingBalance int
}

// NewLedger creates a ledger backed by PostgreSQL.
func NewLedger(db infra.TxExecutor, startingBalance int) *LedgerPG {
	if startingBalance <= 0 {
		startingBalance = domain.DefaultStartingBalance
	}
	return &LedgerPG{db: db, startingBalance: startingBalance}
}

// GetBalance returns the stored balance or the starting balance when the
// profile does not exist yet.
func (l *LedgerPG) GetBalance(ctx context.Context, userID string) (int, error) {
	var balance int
	if err := l.db.QueryRow(ctx, sqlinline.QGetCreditBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return l.startingBalance, nil
		}
		return 0, fmt.Errorf("ledger: get balance: %w", err)
	}
	return balance, nil
}

// Deduct debits amount from the user's balance.
func (l *LedgerPG) Deduct(ctx context.Context, userID string, amount int, jobID, description string) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := l.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sqlinline.QDebitCreditProfile, userID, amount).Scan(&balance); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrInsufficientCredits
			}
			return fmt.Errorf("ledger: debit: %w", err)
		}
		return insertTransaction(ctx, tx, domain.CreditTransaction{
			UserID:       userID,
			Amount:       -amount,
			Type:         domain.TransactionDeduction,
			Description:  description,
			JobID:        jobID,
			BalanceAfter: balance,
		})
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Refund credits amount back for a job owned by userID, once per job.
func (l *LedgerPG) Refund(ctx context.Context, userID string, amount int, jobID, description string) (int, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var balance int
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		var owner string
		if err := tx.QueryRow(ctx, sqlinline.QJobOwner, jobID).Scan(&owner); err != nil {
			if infra.IsNoRows(err) {
				return domain.ErrJobNotFound
			}
			return fmt.Errorf("ledger: job owner: %w", err)
		}
		if owner != userID {
			return domain.ErrJobNotFound
		}
		if err := l.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, sqlinline.QLockCreditProfile, userID).Scan(&balance); err != nil {
			return fmt.Errorf("ledger: lock profile: %w", err)
		}
		var refunded bool
		if err := tx.QueryRow(ctx, sqlinline.QRefundExists, jobID).Scan(&refunded); err != nil {
			return fmt.Errorf("ledger: refund lookup: %w", err)
		}
		if refunded {
			return domain.ErrAlreadyRefunded
		}
		if err := tx.QueryRow(ctx, sqlinline.QCreditCreditProfile, userID, amount).Scan(&balance); err != nil {
			return fmt.Errorf("ledger: credit: %w", err)
		}
		err := insertTransaction(ctx, tx, domain.CreditTransaction{
			UserID:       userID,
			Amount:       amount,
			Type:         domain.TransactionRefund,
			Description:  description,
			JobID:        jobID,
			BalanceAfter: balance,
		})
		if infra.IsUniqueViolation(err) {
			return domain.ErrAlreadyRefunded
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Fulfill credits a purchase exactly once per payment id.
func (l *LedgerPG) Fulfill(ctx context.Context, userID string, amount int, paymentID, description string) (domain.FulfillResult, error) {
	if amount <= 0 {
		return domain.FulfillResult{}, domain.ErrInvalidAmount
	}
	if paymentID == "" {
		return domain.FulfillResult{}, domain.ErrInvalidInput
	}
	var result domain.FulfillResult
	err := l.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if err := l.ensureProfile(ctx, tx, userID); err != nil {
			return err
		}
		var balance int
		if err := tx.QueryRow(ctx, sqlinline.QLockCreditProfile, userID).Scan(&balance); err != nil {
			return fmt.Errorf("ledger: lock profile: %w", err)
		}
		var payer string
		err := tx.QueryRow(ctx, sqlinline.QPurchaseByPayment, paymentID).Scan(&payer)
		switch {
		case err == nil:
			result = domain.FulfillResult{AlreadyProcessed: true, Balance: balance}
			return nil
		case !infra.IsNoRows(err):
			return fmt.Errorf("ledger: payment lookup: %w", err)
		}
		if err := tx.QueryRow(ctx, sqlinline.QCreditCreditProfile, userID, amount).Scan(&balance); err != nil {
			return fmt.Errorf("ledger: credit: %w", err)
		}
		if err := insertTransaction(ctx, tx, domain.CreditTransaction{
			UserID:       userID,
			Amount:       amount,
			Type:         domain.TransactionPurchase,
			Description:  description,
			PaymentID:    paymentID,
			BalanceAfter: balance,
		}); err != nil {
			return err
		}
		result = domain.FulfillResult{Balance: balance}
		return nil
	})
	if err != nil {
		if infra.IsUniqueViolation(err) {
			// A concurrent fulfillment of the same payment committed first.
			balance, balErr := l.GetBalance(ctx, userID)
			if balErr != nil {
				return domain.FulfillResult{}, balErr
			}
			return domain.FulfillResult{AlreadyProcessed: true, Balance: balance}, nil
		}
		return domain.FulfillResult{}, err
	}
	return result, nil
}

// ListTransactions returns the newest transactions first.
func (l *LedgerPG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, sqlinline.QListCreditTransactions, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var (
			tx   domain.CreditTransaction
			kind string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &kind, &tx.Description, &tx.JobID, &tx.PaymentID, &tx.BalanceAfter, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		tx.Type = domain.TransactionType(kind)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate transactions: %w", err)
	}
	return out, nil
}

func (l *LedgerPG) ensureProfile(ctx context.Context, tx infra.SQLExecutor, userID string) error {
	if _, err := tx.Exec(ctx, sqlinline.QEnsureCreditProfile, userID, l.startingBalance); err != nil {
		return fmt.Errorf("ledger: ensure profile: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx infra.SQLExecutor, t domain.CreditTransaction) error {
	var createdAt time.Time
	err := tx.QueryRow(ctx, sqlinline.QInsertCreditTransaction,
		uuid.NewString(),
		t.UserID,
		t.Amount,
		string(t.Type),
		t.Description,
		t.JobID,
		t.PaymentID,
		t.BalanceAfter,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("ledger: insert transaction: %w", err)
	}
	return nil
}

var _ domain.Ledger = (*LedgerPG)(nil)
