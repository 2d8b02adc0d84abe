package audit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primanota/primanota/internal/platform/db"
)

// Writer appends chained records inside a caller-owned transaction. The
// previous-hash dependency forces a total order on appends: the tail read
// conflicts under serializable isolation and concurrent posters retry.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// AppendTx writes rec as the next link of the chain using tx. The record and
// the mutation it describes commit or roll back together.
func (w *Writer) AppendTx(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	prev := GenesisHash
	err := tx.QueryRow(ctx, `SELECT curr_hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}
	rec.PrevHash = prev
	rec.CurrHash = ChainHash(prev, rec.Payload)
	err = tx.QueryRow(ctx, `INSERT INTO audit_log (entry_id, action, actor, payload, prev_hash, curr_hash)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		rec.EntryID, rec.Action, rec.Actor, string(rec.Payload), rec.PrevHash, rec.CurrHash).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Appender writes a single chained record in its own transaction, for
// actions that are not part of a posting transaction (period closures,
// year finalization).
type Appender struct {
	db *pgxpool.Pool
	w  *Writer
}

func NewAppender(pool *pgxpool.Pool) *Appender {
	return &Appender{db: pool, w: NewWriter()}
}

func (a *Appender) Append(ctx context.Context, rec Record) (Record, error) {
	var out Record
	err := db.WithSerializableTx(ctx, a.db, func(tx pgx.Tx) error {
		var err error
		out, err = a.w.AppendTx(ctx, tx, rec)
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

// Repository reads committed audit records for verification and listing.
type Repository interface {
	Range(ctx context.Context, fromID, toID int64) ([]Record, error)
	LastID(ctx context.Context) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Range returns records with fromID <= id <= toID ordered by id. A toID of 0
// means "to the end of the chain".
func (r *repository) Range(ctx context.Context, fromID, toID int64) ([]Record, error) {
	rows, err := r.db.Query(ctx, `SELECT id, entry_id, action, actor, payload, prev_hash, curr_hash, created_at
FROM audit_log WHERE id >= $1 AND ($2 = 0 OR id <= $2) ORDER BY id ASC`, fromID, toID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.ID, &rec.EntryID, &rec.Action, &rec.Actor, &payload, &rec.PrevHash, &rec.CurrHash, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = []byte(payload)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *repository) LastID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM audit_log`).Scan(&id)
	return id, err
}
