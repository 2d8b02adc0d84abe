package reports

import (
	"time"

	"github.com/primanota/primanota/internal/ledger/accounts"
)

// BalanceSide names which side an account's net balance falls on.
type BalanceSide string

const (
	SideDebit  BalanceSide = "DEBIT"
	SideCredit BalanceSide = "CREDIT"
)

// TrialBalanceRow is one account's aggregated movement over a date range,
// resolved to its natural side.
type TrialBalanceRow struct {
	AccountCode   string                 `json:"account_code"`
	AccountName   string                 `json:"account_name"`
	StatementType accounts.StatementType `json:"statement_type"`
	DebitCents    int64                  `json:"debit_cents"`
	CreditCents   int64                  `json:"credit_cents"`
	Side          BalanceSide            `json:"side"`
	BalanceCents  int64                  `json:"balance_cents"`
}

// LedgerRow is one movement on an account's ledger card.
type LedgerRow struct {
	Date        time.Time `json:"date"`
	Protocol    string    `json:"protocol"`
	Description string    `json:"description"`
	DebitCents  int64     `json:"debit_cents"`
	CreditCents int64     `json:"credit_cents"`
}
