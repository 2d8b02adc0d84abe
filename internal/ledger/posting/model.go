package posting

import (
	"fmt"
	"time"
)

// Entry is a committed journal entry. (Year, Series, Sequence) is globally
// unique and immutable once assigned; entries are never updated in place.
type Entry struct {
	ID              int64       `json:"id"`
	Date            time.Time   `json:"date"`
	Year            int         `json:"year"`
	Protocol        string      `json:"protocol"`
	Series          string      `json:"series"`
	Sequence        int64       `json:"sequence"`
	Document        string      `json:"document,omitempty"`
	DocumentDate    *time.Time  `json:"document_date,omitempty"`
	Party           string      `json:"party,omitempty"`
	Description     string      `json:"description"`
	CreatedBy       string      `json:"created_by"`
	ReversalOf      *int64      `json:"reversal_of,omitempty"`
	ClientReference string      `json:"client_reference,omitempty"`
	Tax             *TaxDetail  `json:"tax,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	Lines           []EntryLine `json:"lines,omitempty"`
}

// EntryLine is a single debit-or-credit movement against one account.
// Amounts are non-negative integer minor units; a line is either a debit
// line or a credit line, never both.
type EntryLine struct {
	ID          int64  `json:"id"`
	EntryID     int64  `json:"entry_id"`
	AccountCode string `json:"account_code"`
	DebitCents  int64  `json:"debit_cents"`
	CreditCents int64  `json:"credit_cents"`
}

// TaxDetail carries optional VAT attributes on an entry. The rate is held in
// basis points so consistency checks stay exact integer arithmetic.
type TaxDetail struct {
	TaxableCents int64 `json:"taxable_cents"`
	RateBps      int64 `json:"rate_bps"`
	TaxCents     int64 `json:"tax_cents"`
}

// PostedEntry is the result handed back to callers after a successful post
// (or an idempotent replay of one).
type PostedEntry struct {
	EntryID   int64       `json:"entry_id"`
	Protocol  string      `json:"protocol"`
	Series    string      `json:"series"`
	Sequence  int64       `json:"sequence"`
	Lines     []EntryLine `json:"lines,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Replayed  bool        `json:"replayed"`
}

// FormatProtocol renders the display protocol, e.g. "2025/GEN/000001".
// Display only: the numeric fields stay authoritative and the string is
// never parsed back.
func FormatProtocol(year int, series string, sequence int64) string {
	return fmt.Sprintf("%d/%s/%06d", year, series, sequence)
}

// IdempotencyRecord maps a caller-supplied key to the fingerprint and entry
// it produced.
type IdempotencyRecord struct {
	Key         string
	Fingerprint string
	EntryID     int64
	Protocol    string
	CreatedAt   time.Time
}
