package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context) ([]Account, error)
	GetByCode(ctx context.Context, code string) (Account, error)
	Insert(ctx context.Context, a Account) (Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, statement_type, is_leaf, parent_code, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.StatementType, &a.IsLeaf, &a.ParentCode, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) GetByCode(ctx context.Context, code string) (Account, error) {
	var a Account
	err := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.StatementType, &a.IsLeaf, &a.ParentCode, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.E(shared.KindAccountNotFound, "account %s does not exist", code)
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Insert(ctx context.Context, a Account) (Account, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO accounts (code, name, statement_type, is_leaf, parent_code)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		a.Code, a.Name, a.StatementType, a.IsLeaf, a.ParentCode).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return Account{}, err
	}
	return a, nil
}
