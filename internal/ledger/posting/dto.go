package posting

import (
	"strings"
	"time"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// DefaultSeries is used when a request does not name a protocol series.
const DefaultSeries = "GEN"

// LineInput describes one proposed journal line in minor units.
type LineInput struct {
	AccountCode string `json:"account_code"`
	DebitCents  int64  `json:"debit_cents"`
	CreditCents int64  `json:"credit_cents"`
}

// PostRequest is a proposed journal entry as submitted by callers.
type PostRequest struct {
	Date            time.Time
	Series          string
	Document        string
	DocumentDate    *time.Time
	Party           string
	Description     string
	Lines           []LineInput
	Tax             *TaxDetail
	ReversalOf      int64
	IdempotencyKey  string
	ClientReference string
	Actor           string
}

// Normalize trims and defaults caller-controlled fields and verifies the
// request's structural shape. Shape problems map to INVALID_INPUT, never to
// panics or opaque failures.
func (r *PostRequest) Normalize() error {
	r.Series = strings.ToUpper(strings.TrimSpace(r.Series))
	if r.Series == "" {
		r.Series = DefaultSeries
	}
	r.Description = strings.TrimSpace(r.Description)
	r.Actor = strings.TrimSpace(r.Actor)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)

	if r.Date.IsZero() {
		return shared.E(shared.KindInvalidInput, "entry date is required")
	}
	if r.Description == "" {
		return shared.E(shared.KindInvalidInput, "description is required")
	}
	if r.Actor == "" {
		return shared.E(shared.KindInvalidInput, "actor identity is required")
	}
	if r.ReversalOf < 0 {
		return shared.E(shared.KindInvalidInput, "reversal_of must reference an entry id")
	}
	return nil
}

// Year derives the protocol year from the entry date.
func (r *PostRequest) Year() int {
	return r.Date.Year()
}
