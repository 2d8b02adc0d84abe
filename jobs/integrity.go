package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IntegrityScanner cross-checks committed ledger state against the core
// invariants: every entry balances, every line sits on exactly one side, and
// protocol sequences are gapless per (year, series).
type IntegrityScanner struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func NewIntegrityScanner(db *pgxpool.Pool, logger *slog.Logger) *IntegrityScanner {
	return &IntegrityScanner{db: db, logger: logger}
}

// Scan runs all checks and returns an error naming the first violation class
// found. Violations are data corruption, never transient.
func (s *IntegrityScanner) Scan(ctx context.Context) error {
	var unbalanced int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM (
  SELECT entry_id FROM entry_lines
  GROUP BY entry_id
  HAVING SUM(debit_cents) <> SUM(credit_cents)
) AS bad`).Scan(&unbalanced)
	if err != nil {
		return fmt.Errorf("jobs: balance scan: %w", err)
	}
	if unbalanced > 0 {
		return fmt.Errorf("jobs: %d committed entries do not balance", unbalanced)
	}

	var twoSided int
	err = s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM entry_lines WHERE debit_cents <> 0 AND credit_cents <> 0`).Scan(&twoSided)
	if err != nil {
		return fmt.Errorf("jobs: line side scan: %w", err)
	}
	if twoSided > 0 {
		return fmt.Errorf("jobs: %d lines carry both a debit and a credit", twoSided)
	}

	var gapped int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM (
  SELECT year, protocol_series,
         MAX(protocol_no) AS max_no, COUNT(*) AS cnt
  FROM entries
  GROUP BY year, protocol_series
  HAVING MAX(protocol_no) <> COUNT(*)
) AS gaps`).Scan(&gapped)
	if err != nil {
		return fmt.Errorf("jobs: protocol gap scan: %w", err)
	}
	if gapped > 0 {
		return fmt.Errorf("jobs: %d (year, series) sequences have gaps", gapped)
	}

	s.logger.Info("ledger integrity scan clean")
	return nil
}

// HandleLedgerIntegrityTask adapts the scanner to an asynq handler.
func HandleLedgerIntegrityTask(scanner *IntegrityScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := scanner.Scan(ctx); err != nil {
			logger.Error("ledger integrity scan FAILED", slog.Any("error", err))
			return err
		}
		return nil
	}
}
