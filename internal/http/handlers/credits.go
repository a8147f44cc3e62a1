package handlers

import (
	"net/http"
	"time"

	"spritegen/internal/domain"
)

type transactionView struct {
	ID           string                 `json:"id"`
	Amount       int                    `json:"amount"`
	Type         domain.TransactionType `json:"type"`
	Description  string                 `json:"description"`
	JobID        string                 `json:"jobId,omitempty"`
	BalanceAfter int                    `json:"balanceAfter"`
	CreatedAt    time.Time              `json:"createdAt"`
}

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	balance, err := a.Gen.Balance(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]int{"balance": balance})
}

func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	txs, err := a.Gen.Transactions(r.Context(), userID, queryLimit(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		items = append(items, transactionView{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Type:         tx.Type,
			Description:  tx.Description,
			JobID:        tx.JobID,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
