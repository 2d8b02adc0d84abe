package periods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Service administers fiscal periods. The posting engine only reads status;
// transitions here are the closure operations driven by operators.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// SeedYear creates the year-level period plus twelve monthly periods, all
// open, in one transaction. Existing rows are left untouched.
func (s *Service) SeedYear(ctx context.Context, year int) error {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	ps := make([]Period, 0, 13)
	ps = append(ps, Period{Year: year, StartDate: start, EndDate: end, Status: StatusOpen})
	for m := 1; m <= 12; m++ {
		month := m
		first := time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		last := first.AddDate(0, 1, -1)
		ps = append(ps, Period{Year: year, Month: &month, StartDate: first, EndDate: last, Status: StatusOpen})
	}
	if err := s.repo.InsertMany(ctx, ps); err != nil {
		return fmt.Errorf("periods: seed year %d: %w", year, err)
	}
	if s.logger != nil {
		s.logger.Info("seeded fiscal year", slog.Int("year", year))
	}
	return nil
}

// Close marks a period closed. Already closed or finalized periods are
// rejected so closures stay explicit, single-shot operations.
func (s *Service) Close(ctx context.Context, year int, month *int) error {
	p, err := s.repo.Get(ctx, year, month)
	if err != nil {
		return err
	}
	switch p.Status {
	case StatusClosed:
		return shared.E(shared.KindPeriodClosed, "period %d/%v already closed", year, month)
	case StatusFinalized:
		return shared.E(shared.KindPeriodClosed, "period %d/%v already finalized", year, month)
	}
	return s.repo.UpdateStatus(ctx, year, month, StatusClosed)
}

// Reopen reverts a closed period to open. Finalized periods stay immutable.
func (s *Service) Reopen(ctx context.Context, year int, month *int) error {
	p, err := s.repo.Get(ctx, year, month)
	if err != nil {
		return err
	}
	if p.Status == StatusFinalized {
		return shared.E(shared.KindPeriodClosed, "period %d/%v is finalized and cannot reopen", year, month)
	}
	return s.repo.UpdateStatus(ctx, year, month, StatusOpen)
}

// FinalizeYear marks the year-level period finalized once every monthly
// period is closed. No postings are produced here.
func (s *Service) FinalizeYear(ctx context.Context, year int) error {
	all, err := s.repo.List(ctx, year)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.Month != nil && p.Status != StatusClosed {
			return shared.E(shared.KindPeriodClosed, "year %d has month %02d in status %s", year, *p.Month, p.Status)
		}
	}
	return s.repo.UpdateStatus(ctx, year, nil, StatusFinalized)
}

func (s *Service) Get(ctx context.Context, year int, month *int) (Period, error) {
	return s.repo.Get(ctx, year, month)
}

func (s *Service) List(ctx context.Context, year int) ([]Period, error) {
	return s.repo.List(ctx, year)
}

// Lookup adapts the repository to the read-only view the validator consumes.
type Lookup struct {
	repo Repository
}

func NewLookup(repo Repository) *Lookup {
	return &Lookup{repo: repo}
}

// StatusForDate resolves the posting-gate status for a date. StatusNone is
// returned when no period covers the date.
func (l *Lookup) StatusForDate(ctx context.Context, date time.Time) (Status, error) {
	p, err := l.repo.ForDate(ctx, date)
	if err != nil {
		if kind, ok := shared.KindOf(err); ok && kind == shared.KindPeriodClosed {
			return StatusNone, nil
		}
		return StatusNone, err
	}
	return p.Status, nil
}
