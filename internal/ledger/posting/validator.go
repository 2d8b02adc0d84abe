package posting

import (
	"context"
	"time"

	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/shared"
)

// AccountLookup is the read-only chart-of-accounts view the validator needs.
type AccountLookup interface {
	Exists(ctx context.Context, code string) (bool, error)
	IsLeaf(ctx context.Context, code string) (bool, error)
}

// PeriodLookup resolves the posting-gate status for an entry date.
type PeriodLookup interface {
	StatusForDate(ctx context.Context, date time.Time) (periods.Status, error)
}

// Validate checks a proposed entry against the accounting invariants. It is
// pure apart from the two read-only lookups, performs no mutation, and
// short-circuits on the first failing rule. Rule order:
//
//  1. line shape (at least one line; exactly one of debit/credit positive)
//  2. accounts exist and are leaves
//  3. entry date falls in an open period
//  4. debits equal credits, exact integer equality
//  5. VAT attributes internally consistent
func Validate(ctx context.Context, req PostRequest, accounts AccountLookup, fiscal PeriodLookup) error {
	if err := validateLines(req.Lines); err != nil {
		return err
	}
	for _, l := range req.Lines {
		exists, err := accounts.Exists(ctx, l.AccountCode)
		if err != nil {
			return err
		}
		if !exists {
			return shared.E(shared.KindAccountNotFound, "account %s does not exist", l.AccountCode)
		}
		leaf, err := accounts.IsLeaf(ctx, l.AccountCode)
		if err != nil {
			return err
		}
		if !leaf {
			return shared.E(shared.KindAccountNotLeaf, "account %s is an aggregate and cannot receive postings", l.AccountCode)
		}
	}

	status, err := fiscal.StatusForDate(ctx, req.Date)
	if err != nil {
		return err
	}
	if status != periods.StatusOpen {
		return shared.E(shared.KindPeriodClosed, "period for %s is %s", req.Date.Format("2006-01-02"), status)
	}

	var debit, credit int64
	for _, l := range req.Lines {
		debit += l.DebitCents
		credit += l.CreditCents
	}
	if debit != credit {
		return shared.E(shared.KindUnbalanced, "debits %d do not equal credits %d", debit, credit)
	}

	if req.Tax != nil {
		if err := validateTax(*req.Tax); err != nil {
			return err
		}
	}
	return nil
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return shared.E(shared.KindMalformedLines, "entry has no lines")
	}
	for i, l := range lines {
		if l.AccountCode == "" {
			return shared.E(shared.KindMalformedLines, "line %d has no account code", i)
		}
		if l.DebitCents < 0 || l.CreditCents < 0 {
			return shared.E(shared.KindMalformedLines, "line %d has a negative amount", i)
		}
		if l.DebitCents > 0 && l.CreditCents > 0 {
			return shared.E(shared.KindMalformedLines, "line %d is both debit and credit", i)
		}
		// A zero/zero line moves no money and is rejected outright.
		if l.DebitCents == 0 && l.CreditCents == 0 {
			return shared.E(shared.KindMalformedLines, "line %d moves no amount", i)
		}
	}
	return nil
}

func validateTax(t TaxDetail) error {
	if t.TaxableCents < 0 || t.RateBps < 0 || t.TaxCents < 0 {
		return shared.E(shared.KindTaxMismatch, "tax attributes must be non-negative")
	}
	if expected := taxFor(t.TaxableCents, t.RateBps); expected != t.TaxCents {
		return shared.E(shared.KindTaxMismatch, "expected tax %d for taxable %d at %d bps, got %d",
			expected, t.TaxableCents, t.RateBps, t.TaxCents)
	}
	return nil
}

// taxFor computes taxable*rate in minor units with half-up rounding,
// entirely in integer arithmetic.
func taxFor(taxableCents, rateBps int64) int64 {
	return (taxableCents*rateBps + 5000) / 10000
}
