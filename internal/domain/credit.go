package domain

import "time"

// DefaultStartingBalance is granted when a profile is created lazily.
const DefaultStartingBalance = 100

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionPurchase  TransactionType = "purchase"
	TransactionDeduction TransactionType = "deduction"
	TransactionRefund    TransactionType = "refund"
)

// Profile holds the running credit balance of a user. OpeningBalance is the
// amount granted at lazy creation and is not backed by a transaction row.
type Profile struct {
	UserID         string
	Balance        int
	OpeningBalance int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreditTransaction is an append-only ledger entry. Amount is signed.
type CreditTransaction struct {
	ID           string
	UserID       string
	Amount       int
	Type         TransactionType
	Description  string
	JobID        string
	PaymentID    string
	BalanceAfter int
	CreatedAt    time.Time
}

// FulfillResult reports the outcome of a purchase fulfillment.
type FulfillResult struct {
	AlreadyProcessed bool
	Balance          int
}

// CreditPack is a purchasable bundle of credits.
type CreditPack struct {
	ID      string
	Credits int
}

// CreditPacks lists the packs the payment flow can fulfill.
var CreditPacks = map[string]CreditPack{
	"starter":  {ID: "starter", Credits: 15},
	"standard": {ID: "standard", Credits: 40},
	"pro":      {ID: "pro", Credits: 120},
	"studio":   {ID: "studio", Credits: 280},
}

// Ledger descriptions written by the generation flow.
const (
	RefundCancelledDescription = "Credits refunded - job cancelled by user"
	RefundFailedDescription    = "Credits refunded for failed job"
)
