package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Service produces the read-side views over committed entries.
type Service struct {
	repo    Repository
	printer *message.Printer
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, printer: message.NewPrinter(language.English)}
}

func (s *Service) TrialBalance(ctx context.Context, from, to time.Time) ([]TrialBalanceRow, error) {
	if to.Before(from) {
		return nil, shared.E(shared.KindInvalidInput, "range end precedes start")
	}
	return s.repo.TrialBalance(ctx, from, to)
}

func (s *Service) AccountLedger(ctx context.Context, accountCode string, from, to time.Time) ([]LedgerRow, error) {
	if accountCode == "" {
		return nil, shared.E(shared.KindInvalidInput, "account code is required")
	}
	if to.Before(from) {
		return nil, shared.E(shared.KindInvalidInput, "range end precedes start")
	}
	return s.repo.AccountLedger(ctx, accountCode, from, to)
}

// TrialBalanceCSV renders the trial balance as CSV with locale-formatted
// amounts.
func (s *Service) TrialBalanceCSV(ctx context.Context, from, to time.Time) ([]byte, error) {
	rows, err := s.TrialBalance(ctx, from, to)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"account_code", "account_name", "statement_type", "debit", "credit", "side", "balance"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.AccountCode,
			row.AccountName,
			string(row.StatementType),
			s.amount(row.DebitCents),
			s.amount(row.CreditCents),
			string(row.Side),
			s.amount(row.BalanceCents),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("reports: csv: %w", err)
	}
	return buf.Bytes(), nil
}

// amount renders minor units as a grouped decimal string, e.g. 1234567 →
// "12,345.67".
func (s *Service) amount(c int64) string {
	sign := ""
	if c < 0 {
		sign = "-"
		c = -c
	}
	return sign + s.printer.Sprintf("%d.%02d", c/100, c%100)
}
