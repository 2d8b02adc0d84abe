package reports

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primanota/primanota/internal/ledger/accounts"
)

// Repository runs the read-only aggregate queries behind the reports.
type Repository interface {
	TrialBalance(ctx context.Context, from, to time.Time) ([]TrialBalanceRow, error)
	AccountLedger(ctx context.Context, accountCode string, from, to time.Time) ([]LedgerRow, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) TrialBalance(ctx context.Context, from, to time.Time) ([]TrialBalanceRow, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.code, a.name, a.statement_type,
       COALESCE(SUM(el.debit_cents), 0) AS debit_cents,
       COALESCE(SUM(el.credit_cents), 0) AS credit_cents
FROM accounts a
JOIN entry_lines el ON el.account_code = a.code
JOIN entries e ON e.id = el.entry_id
WHERE e.entry_date BETWEEN $1 AND $2
GROUP BY a.code, a.name, a.statement_type
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrialBalanceRow
	for rows.Next() {
		var row TrialBalanceRow
		if err := rows.Scan(&row.AccountCode, &row.AccountName, &row.StatementType, &row.DebitCents, &row.CreditCents); err != nil {
			return nil, err
		}
		row.Side, row.BalanceCents = resolveSide(row.StatementType, row.DebitCents, row.CreditCents)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repository) AccountLedger(ctx context.Context, accountCode string, from, to time.Time) ([]LedgerRow, error) {
	rows, err := r.db.Query(ctx, `
SELECT e.entry_date, e.protocol, e.description, el.debit_cents, el.credit_cents
FROM entry_lines el
JOIN entries e ON e.id = el.entry_id
WHERE el.account_code = $1 AND e.entry_date BETWEEN $2 AND $3
ORDER BY e.entry_date, e.id`, accountCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LedgerRow
	for rows.Next() {
		var row LedgerRow
		if err := rows.Scan(&row.Date, &row.Protocol, &row.Description, &row.DebitCents, &row.CreditCents); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// resolveSide nets debits against credits according to the account's
// nature: ASSET/EXPENSE are debit-natured, the rest credit-natured.
func resolveSide(t accounts.StatementType, debit, credit int64) (BalanceSide, int64) {
	if t.DebitNatured() {
		net := debit - credit
		if net >= 0 {
			return SideDebit, net
		}
		return SideCredit, -net
	}
	net := credit - debit
	if net >= 0 {
		return SideCredit, net
	}
	return SideDebit, -net
}
