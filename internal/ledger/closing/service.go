package closing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/primanota/primanota/internal/ledger/accounts"
	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/posting"
	"github.com/primanota/primanota/internal/ledger/reports"
	"github.com/primanota/primanota/internal/ledger/shared"
)

// Protocol series used by closure postings.
const (
	SeriesAdjustment = "ADJ"
	SeriesClosing    = "CLOSE"
	SeriesOpening    = "OPEN"
)

// DefaultEquityAccount receives the net income when the income statement is
// closed at year end.
const DefaultEquityAccount = "9999"

// Poster is the slice of the posting engine closure flows need.
type Poster interface {
	Post(ctx context.Context, req posting.PostRequest) (posting.PostedEntry, error)
}

// TrialBalancer supplies aggregated balances for income closing and opening
// balance carry-forward.
type TrialBalancer interface {
	TrialBalance(ctx context.Context, from, to time.Time) ([]reports.TrialBalanceRow, error)
}

// PeriodAdmin is the slice of period administration closure flows drive.
type PeriodAdmin interface {
	Get(ctx context.Context, year int, month *int) (periods.Period, error)
	Close(ctx context.Context, year int, month *int) error
	FinalizeYear(ctx context.Context, year int) error
	SeedYear(ctx context.Context, year int) error
}

// Auditor appends closure actions to the audit chain.
type Auditor interface {
	Append(ctx context.Context, rec audit.Record) (audit.Record, error)
}

// AdjustmentInput is one explicit accrual, deferral or amortization entry
// posted as part of a period close.
type AdjustmentInput struct {
	Description string              `json:"description"`
	Document    string              `json:"document,omitempty"`
	Lines       []posting.LineInput `json:"lines"`
}

// CloseResult reports what a period close produced.
type CloseResult struct {
	Year        int                  `json:"year"`
	Month       *int                 `json:"month,omitempty"`
	Adjustments []posting.PostedEntry `json:"adjustments,omitempty"`
	Closing     *posting.PostedEntry `json:"closing,omitempty"`
}

// Service runs the closure flows: close a period, finalize a year, open the
// next year. All generated entries go through the posting engine, so they get
// protocols, validation and audit records like any other entry.
type Service struct {
	poster  Poster
	balance TrialBalancer
	periods PeriodAdmin
	auditor Auditor
	logger  *slog.Logger
	equity  string
}

func NewService(poster Poster, balance TrialBalancer, periodAdmin PeriodAdmin, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{
		poster:  poster,
		balance: balance,
		periods: periodAdmin,
		auditor: auditor,
		logger:  logger,
		equity:  DefaultEquityAccount,
	}
}

// WithEquityAccount overrides the account net income closes into.
func (s *Service) WithEquityAccount(code string) {
	s.equity = code
}

// ClosePeriod posts the supplied adjustments under ADJ, then, for the
// year-level period, posts the income-statement close under CLOSE, then marks
// the period closed and records the closure in the audit chain. Adjustments
// are posted against an open period, so they must run before the status flip.
//
// The year-level close owns December: its ADJ and CLOSE entries are dated
// December 31, so months 1-11 must already be closed and December must still
// be open when it runs. Closing the year then closes December together with
// the year period, keeping the workflow close Jan-Nov, close year, finalize.
func (s *Service) ClosePeriod(ctx context.Context, year int, month *int, actor string, adjustments []AdjustmentInput) (CloseResult, error) {
	p, err := s.periods.Get(ctx, year, month)
	if err != nil {
		return CloseResult{}, err
	}
	if p.Status != periods.StatusOpen {
		return CloseResult{}, shared.E(shared.KindPeriodClosed, "period %d/%v is %s", year, month, p.Status)
	}
	if month == nil {
		if err := s.ensureYearClosable(ctx, year); err != nil {
			return CloseResult{}, err
		}
	}

	res := CloseResult{Year: year, Month: month}
	for i, adj := range adjustments {
		posted, err := s.poster.Post(ctx, posting.PostRequest{
			Date:           p.EndDate,
			Series:         SeriesAdjustment,
			Document:       adj.Document,
			Description:    adj.Description,
			Lines:          adj.Lines,
			Actor:          actor,
			IdempotencyKey: fmt.Sprintf("ADJ:%d:%s:%d", year, monthLabel(month), i),
		})
		if err != nil {
			return CloseResult{}, err
		}
		res.Adjustments = append(res.Adjustments, posted)
	}

	if month == nil {
		closing, err := s.closeIncome(ctx, p, actor)
		if err != nil {
			return CloseResult{}, err
		}
		res.Closing = closing

		december := 12
		if err := s.periods.Close(ctx, year, &december); err != nil {
			return CloseResult{}, err
		}
	}

	if err := s.periods.Close(ctx, year, month); err != nil {
		return CloseResult{}, err
	}

	if err := s.audit(ctx, audit.ActionClosePeriod, actor, res); err != nil {
		return CloseResult{}, err
	}
	s.logger.Info("period closed",
		slog.Int("year", year),
		slog.Any("month", month),
		slog.Int("adjustments", len(res.Adjustments)))
	return res, nil
}

// ensureYearClosable checks the monthly ordering the year close depends on:
// January through November closed, December open so the closure entries can
// post into it.
func (s *Service) ensureYearClosable(ctx context.Context, year int) error {
	for m := 1; m <= 11; m++ {
		month := m
		mp, err := s.periods.Get(ctx, year, &month)
		if err != nil {
			return err
		}
		if mp.Status == periods.StatusOpen {
			return shared.E(shared.KindInvalidInput,
				"month %02d/%d must be closed before the year", m, year)
		}
	}
	december := 12
	dp, err := s.periods.Get(ctx, year, &december)
	if err != nil {
		return err
	}
	if dp.Status != periods.StatusOpen {
		return shared.E(shared.KindPeriodClosed,
			"month 12/%d is %s; year-end closing entries post into December, reopen it before closing the year", year, dp.Status)
	}
	return nil
}

// closeIncome zeroes every income-statement balance against the equity
// account. A year with no income activity produces no closing entry.
func (s *Service) closeIncome(ctx context.Context, p periods.Period, actor string) (*posting.PostedEntry, error) {
	rows, err := s.balance.TrialBalance(ctx, p.StartDate, p.EndDate)
	if err != nil {
		return nil, err
	}

	var lines []posting.LineInput
	var net int64 // positive = credit to equity (profit)
	for _, row := range rows {
		if row.StatementType != accounts.StatementTypeRevenue && row.StatementType != accounts.StatementTypeExpense {
			continue
		}
		if row.BalanceCents == 0 {
			continue
		}
		// Zero the account on the side opposite its balance.
		line := posting.LineInput{AccountCode: row.AccountCode}
		if row.Side == reports.SideCredit {
			line.DebitCents = row.BalanceCents
			net += row.BalanceCents
		} else {
			line.CreditCents = row.BalanceCents
			net -= row.BalanceCents
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, nil
	}

	equity := posting.LineInput{AccountCode: s.equity}
	if net >= 0 {
		equity.CreditCents = net
	} else {
		equity.DebitCents = -net
	}
	if equity.DebitCents != 0 || equity.CreditCents != 0 {
		lines = append(lines, equity)
	}

	posted, err := s.poster.Post(ctx, posting.PostRequest{
		Date:           p.EndDate,
		Series:         SeriesClosing,
		Description:    fmt.Sprintf("income closing %d", p.Year),
		Lines:          lines,
		Actor:          actor,
		IdempotencyKey: fmt.Sprintf("CLOSE:%d", p.Year),
	})
	if err != nil {
		return nil, err
	}
	return &posted, nil
}

// FinalizeYear marks the year immutable once every month is closed, and
// records the action in the audit chain.
func (s *Service) FinalizeYear(ctx context.Context, year int, actor string) error {
	if err := s.periods.FinalizeYear(ctx, year); err != nil {
		return err
	}
	if err := s.audit(ctx, audit.ActionFinalizeYear, actor, map[string]any{"year": year}); err != nil {
		return err
	}
	s.logger.Info("year finalized", slog.Int("year", year))
	return nil
}

// OpenYear seeds year's periods and carries the finalized previous year's
// balance-sheet balances forward as one OPEN entry dated January 1.
func (s *Service) OpenYear(ctx context.Context, year int, actor string) (*posting.PostedEntry, error) {
	prev, err := s.periods.Get(ctx, year-1, nil)
	if err != nil {
		return nil, err
	}
	if prev.Status != periods.StatusFinalized {
		return nil, shared.E(shared.KindPeriodClosed, "year %d must be finalized before opening %d", year-1, year)
	}

	if err := s.periods.SeedYear(ctx, year); err != nil {
		return nil, err
	}

	rows, err := s.balance.TrialBalance(ctx, prev.StartDate, prev.EndDate)
	if err != nil {
		return nil, err
	}
	var lines []posting.LineInput
	for _, row := range rows {
		if row.StatementType == accounts.StatementTypeRevenue || row.StatementType == accounts.StatementTypeExpense {
			continue
		}
		if row.BalanceCents == 0 {
			continue
		}
		line := posting.LineInput{AccountCode: row.AccountCode}
		if row.Side == reports.SideDebit {
			line.DebitCents = row.BalanceCents
		} else {
			line.CreditCents = row.BalanceCents
		}
		lines = append(lines, line)
	}

	var posted *posting.PostedEntry
	if len(lines) > 0 {
		p, err := s.poster.Post(ctx, posting.PostRequest{
			Date:           time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			Series:         SeriesOpening,
			Description:    fmt.Sprintf("opening balances %d", year),
			Lines:          lines,
			Actor:          actor,
			IdempotencyKey: fmt.Sprintf("OPEN:%d", year),
		})
		if err != nil {
			return nil, err
		}
		posted = &p
	}

	if err := s.audit(ctx, audit.ActionOpenYear, actor, map[string]any{"year": year, "carried_lines": len(lines)}); err != nil {
		return nil, err
	}
	s.logger.Info("year opened", slog.Int("year", year), slog.Int("carried_lines", len(lines)))
	return posted, nil
}

func (s *Service) audit(ctx context.Context, action, actor string, detail any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("closing: encode audit payload: %w", err)
	}
	_, err = s.auditor.Append(ctx, audit.Record{Action: action, Actor: actor, Payload: payload})
	return err
}

func monthLabel(month *int) string {
	if month == nil {
		return "year"
	}
	return fmt.Sprintf("%02d", *month)
}
