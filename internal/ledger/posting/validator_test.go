package posting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/shared"
)

type stubAccounts struct {
	known map[string]bool // code -> isLeaf
}

func (s stubAccounts) Exists(_ context.Context, code string) (bool, error) {
	_, ok := s.known[code]
	return ok, nil
}

func (s stubAccounts) IsLeaf(_ context.Context, code string) (bool, error) {
	return s.known[code], nil
}

type stubPeriods struct {
	status periods.Status
}

func (s stubPeriods) StatusForDate(context.Context, time.Time) (periods.Status, error) {
	return s.status, nil
}

func balancedRequest() PostRequest {
	return PostRequest{
		Date:        time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		Series:      "GEN",
		Description: "test entry",
		Actor:       "tester",
		Lines: []LineInput{
			{AccountCode: "1410", DebitCents: 12100},
			{AccountCode: "4100", CreditCents: 10000},
			{AccountCode: "2321", CreditCents: 2100},
		},
	}
}

func openPeriods() stubPeriods {
	return stubPeriods{status: periods.StatusOpen}
}

func leafAccounts() stubAccounts {
	return stubAccounts{known: map[string]bool{"1410": true, "4100": true, "2321": true}}
}

func TestValidateAcceptsBalancedEntry(t *testing.T) {
	err := Validate(context.Background(), balancedRequest(), leafAccounts(), openPeriods())
	require.NoError(t, err)
}

func TestValidateRejectsEmptyLines(t *testing.T) {
	req := balancedRequest()
	req.Lines = nil
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrMalformedLines)
}

func TestValidateRejectsTwoSidedLine(t *testing.T) {
	req := balancedRequest()
	req.Lines[0].CreditCents = 10
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrMalformedLines)
}

func TestValidateRejectsZeroZeroLine(t *testing.T) {
	req := balancedRequest()
	req.Lines = append(req.Lines, LineInput{AccountCode: "1410"})
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrMalformedLines)
}

func TestValidateRejectsNegativeAmount(t *testing.T) {
	req := balancedRequest()
	req.Lines[0].DebitCents = -1
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrMalformedLines)
}

func TestValidateRejectsUnknownAccount(t *testing.T) {
	req := balancedRequest()
	req.Lines[0].AccountCode = "9999"
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestValidateRejectsAggregateAccount(t *testing.T) {
	accs := leafAccounts()
	accs.known["1400"] = false // known but not a leaf
	req := balancedRequest()
	req.Lines[0].AccountCode = "1400"
	err := Validate(context.Background(), req, accs, openPeriods())
	assert.ErrorIs(t, err, shared.ErrAccountNotLeaf)
}

func TestValidateRejectsClosedPeriod(t *testing.T) {
	err := Validate(context.Background(), balancedRequest(), leafAccounts(), stubPeriods{status: periods.StatusClosed})
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestValidateRejectsUncoveredDate(t *testing.T) {
	err := Validate(context.Background(), balancedRequest(), leafAccounts(), stubPeriods{status: periods.StatusNone})
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestValidateRejectsUnbalancedEntry(t *testing.T) {
	req := balancedRequest()
	req.Lines[1].CreditCents = 9999
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrUnbalanced)
}

func TestValidateShortCircuitsLineShapeBeforeAccounts(t *testing.T) {
	// An unbalanced entry with an unknown account and no amounts must report
	// the line shape problem, not the later rules.
	req := balancedRequest()
	req.Lines = []LineInput{{AccountCode: "9999"}}
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrMalformedLines)
}

func TestValidateTaxConsistency(t *testing.T) {
	req := balancedRequest()
	req.Tax = &TaxDetail{TaxableCents: 10000, RateBps: 2100, TaxCents: 2100}
	require.NoError(t, Validate(context.Background(), req, leafAccounts(), openPeriods()))

	req.Tax.TaxCents = 2099
	err := Validate(context.Background(), req, leafAccounts(), openPeriods())
	assert.ErrorIs(t, err, shared.ErrTaxMismatch)
}

func TestTaxForRoundsHalfUp(t *testing.T) {
	// 333 * 21% = 69.93 -> 70; 150 * 3.33% = 4.995 -> 5; 100 * 0.49% = 0.49 -> 0
	assert.Equal(t, int64(70), taxFor(333, 2100))
	assert.Equal(t, int64(5), taxFor(150, 333))
	assert.Equal(t, int64(0), taxFor(100, 49))
	assert.Equal(t, int64(1), taxFor(100, 50))
}
