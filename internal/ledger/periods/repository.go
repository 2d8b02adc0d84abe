package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primanota/primanota/internal/ledger/shared"
	"github.com/primanota/primanota/internal/platform/db"
)

// Repository encapsulates DB operations for fiscal periods.
type Repository interface {
	Get(ctx context.Context, year int, month *int) (Period, error)
	ForDate(ctx context.Context, date time.Time) (Period, error)
	List(ctx context.Context, year int) ([]Period, error)
	InsertMany(ctx context.Context, ps []Period) error
	UpdateStatus(ctx context.Context, year int, month *int, status Status) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, year, month, start_date, end_date, status, closed_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Year, &p.Month, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) Get(ctx context.Context, year int, month *int) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE year=$1 AND month IS NOT DISTINCT FROM $2`, year, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.E(shared.KindEntryNotFound, "period %d/%v does not exist", year, month)
		}
		return Period{}, err
	}
	return p, nil
}

// ForDate resolves the most specific period covering date: a monthly period
// wins over the year-level one.
func (r *repository) ForDate(ctx context.Context, date time.Time) (Period, error) {
	p, err := scanPeriod(r.db.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM periods
		 WHERE start_date <= $1 AND end_date >= $1
		 ORDER BY month IS NULL ASC LIMIT 1`, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.E(shared.KindPeriodClosed, "no period covers date %s", date.Format("2006-01-02"))
		}
		return Period{}, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, year int) ([]Period, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE year=$1 ORDER BY month NULLS FIRST`, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertMany inserts the periods in one transaction so a year is seeded
// whole or not at all. Existing rows are left untouched.
func (r *repository) InsertMany(ctx context.Context, ps []Period) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, p := range ps {
			_, err := tx.Exec(ctx, `INSERT INTO periods (year, month, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (year, month) DO NOTHING`,
				p.Year, p.Month, p.StartDate, p.EndDate, p.Status)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) UpdateStatus(ctx context.Context, year int, month *int, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE periods SET status=$3,
  closed_at = CASE WHEN $3 <> 'open' THEN NOW() ELSE NULL END,
  updated_at = NOW()
WHERE year=$1 AND month IS NOT DISTINCT FROM $2`, year, month, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.E(shared.KindEntryNotFound, "period %d/%v does not exist", year, month)
	}
	return nil
}
