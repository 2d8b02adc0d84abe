package accounts

import "time"

// StatementType enumerates chart-of-accounts categories.
type StatementType string

const (
	StatementTypeAsset     StatementType = "ASSET"
	StatementTypeLiability StatementType = "LIABILITY"
	StatementTypeEquity    StatementType = "EQUITY"
	StatementTypeRevenue   StatementType = "REVENUE"
	StatementTypeExpense   StatementType = "EXPENSE"
)

// Valid reports whether t is one of the known statement types.
func (t StatementType) Valid() bool {
	switch t {
	case StatementTypeAsset, StatementTypeLiability, StatementTypeEquity, StatementTypeRevenue, StatementTypeExpense:
		return true
	}
	return false
}

// DebitNatured reports whether accounts of this type carry a natural debit
// balance (used by trial balance and income closing).
func (t StatementType) DebitNatured() bool {
	return t == StatementTypeAsset || t == StatementTypeExpense
}

// Account models a chart of accounts node. Non-leaf accounts aggregate their
// children and never receive postings.
type Account struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	StatementType StatementType `json:"statement_type"`
	IsLeaf        bool          `json:"is_leaf"`
	ParentCode    *string       `json:"parent_code,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
