package posting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/shared"
	"github.com/primanota/primanota/internal/platform/db"
)

// Repository is the posting engine's store. WithTx runs fn inside one
// serializable transaction; transient serialization conflicts are retried
// with a fresh transaction before the error surfaces.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (Entry, error)
	ListEntries(ctx context.Context, limit int) ([]Entry, error)
	ReversalOf(ctx context.Context, originalID int64) (int64, bool, error)
}

// TxRepository exposes the mutations and consistent reads available inside
// the posting transaction.
type TxRepository interface {
	GetIdempotency(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	InsertIdempotency(ctx context.Context, rec IdempotencyRecord) error
	AllocateProtocol(ctx context.Context, year int, series string) (int64, error)
	InsertEntry(ctx context.Context, e Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]EntryLine, error)
	EntryExists(ctx context.Context, id int64) (bool, error)
	EntryResult(ctx context.Context, id int64) (PostedEntry, error)
	HasReversal(ctx context.Context, originalID int64) (bool, error)
	InsertReversalLink(ctx context.Context, entryID, originalID int64) error
	AppendAudit(ctx context.Context, rec audit.Record) (audit.Record, error)

	// Consistent reference-data reads for validation within the transaction.
	AccountMeta(ctx context.Context, code string) (exists, isLeaf bool, err error)
	PeriodStatusForDate(ctx context.Context, date time.Time) (periods.Status, error)
}

type repository struct {
	db    *pgxpool.Pool
	chain *audit.Writer
}

func NewRepository(pool *pgxpool.Pool, chain *audit.Writer) Repository {
	return &repository{db: pool, chain: chain}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithSerializableTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, chain: r.chain})
	})
}

const entryColumns = `id, entry_date, year, protocol, protocol_series, protocol_no,
document, document_date, party, description, created_by, reversal_of,
client_reference_id, taxable_cents, tax_rate_bps, tax_cents, created_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		e                Entry
		document, party  *string
		clientRef        *string
		taxable, rate, t *int64
	)
	err := row.Scan(&e.ID, &e.Date, &e.Year, &e.Protocol, &e.Series, &e.Sequence,
		&document, &e.DocumentDate, &party, &e.Description, &e.CreatedBy, &e.ReversalOf,
		&clientRef, &taxable, &rate, &t, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	if document != nil {
		e.Document = *document
	}
	if party != nil {
		e.Party = *party
	}
	if clientRef != nil {
		e.ClientReference = *clientRef
	}
	if taxable != nil && rate != nil && t != nil {
		e.Tax = &TaxDetail{TaxableCents: *taxable, RateBps: *rate, TaxCents: *t}
	}
	return e, nil
}

func (r *repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM entries WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.E(shared.KindEntryNotFound, "entry %d does not exist", id)
		}
		return Entry{}, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, entry_id, account_code, debit_cents, credit_cents
FROM entry_lines WHERE entry_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountCode, &l.DebitCents, &l.CreditCents); err != nil {
			return Entry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (r *repository) ListEntries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) ReversalOf(ctx context.Context, originalID int64) (int64, bool, error) {
	var entryID int64
	err := r.db.QueryRow(ctx, `SELECT entry_id FROM entry_reversals WHERE reversal_of=$1`, originalID).Scan(&entryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return entryID, true, nil
}

type txRepository struct {
	tx    pgx.Tx
	chain *audit.Writer
}

func (r *txRepository) GetIdempotency(ctx context.Context, key string) (IdempotencyRecord, bool, error) {
	var rec IdempotencyRecord
	err := r.tx.QueryRow(ctx, `SELECT key, fingerprint, entry_id, protocol, created_at
FROM idempotency_records WHERE key=$1`, key).
		Scan(&rec.Key, &rec.Fingerprint, &rec.EntryID, &rec.Protocol, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IdempotencyRecord{}, false, nil
		}
		return IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

func (r *txRepository) InsertIdempotency(ctx context.Context, rec IdempotencyRecord) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO idempotency_records (key, fingerprint, entry_id, protocol)
VALUES ($1,$2,$3,$4)`, rec.Key, rec.Fingerprint, rec.EntryID, rec.Protocol)
	if db.IsUniqueViolation(err, "") {
		// Serializable can surface a same-key race as a unique violation
		// instead of 40001. Retrying in a fresh transaction sees the
		// committed record, so the race resolves to a replay on matching
		// fingerprints and a conflict otherwise.
		return fmt.Errorf("posting: idempotency key %s raced a concurrent insert: %w", rec.Key, db.ErrTxConflict)
	}
	return err
}

// AllocateProtocol atomically increments the (year, series) counter,
// creating it on first use. The row lock taken by the upsert serializes
// concurrent allocations for the same key.
func (r *txRepository) AllocateProtocol(ctx context.Context, year int, series string) (int64, error) {
	var seq int64
	err := r.tx.QueryRow(ctx, `INSERT INTO protocol_counters (year, series, counter)
VALUES ($1,$2,1)
ON CONFLICT (year, series) DO UPDATE SET counter = protocol_counters.counter + 1
RETURNING counter`, year, series).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	var taxable, rate, tax *int64
	if e.Tax != nil {
		taxable, rate, tax = &e.Tax.TaxableCents, &e.Tax.RateBps, &e.Tax.TaxCents
	}
	err := r.tx.QueryRow(ctx, `INSERT INTO entries (
entry_date, year, protocol, protocol_series, protocol_no,
document, document_date, party, description, created_by,
reversal_of, client_reference_id, taxable_cents, tax_rate_bps, tax_cents)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING id, created_at`,
		e.Date, e.Year, e.Protocol, e.Series, e.Sequence,
		nullString(e.Document), e.DocumentDate, nullString(e.Party), e.Description, e.CreatedBy,
		e.ReversalOf, nullString(e.ClientReference), taxable, rate, tax).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []LineInput) ([]EntryLine, error) {
	out := make([]EntryLine, 0, len(lines))
	for _, l := range lines {
		var id int64
		err := r.tx.QueryRow(ctx, `INSERT INTO entry_lines (entry_id, account_code, debit_cents, credit_cents)
VALUES ($1,$2,$3,$4) RETURNING id`, entryID, l.AccountCode, l.DebitCents, l.CreditCents).Scan(&id)
		if err != nil {
			return nil, err
		}
		out = append(out, EntryLine{
			ID:          id,
			EntryID:     entryID,
			AccountCode: l.AccountCode,
			DebitCents:  l.DebitCents,
			CreditCents: l.CreditCents,
		})
	}
	return out, nil
}

func (r *txRepository) EntryExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entries WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

// EntryResult rebuilds the posted-entry result from the stored row and its
// lines. The numeric protocol fields are authoritative; the display string
// is read back, never parsed.
func (r *txRepository) EntryResult(ctx context.Context, id int64) (PostedEntry, error) {
	var res PostedEntry
	err := r.tx.QueryRow(ctx, `SELECT id, protocol, protocol_series, protocol_no, created_at
FROM entries WHERE id=$1`, id).
		Scan(&res.EntryID, &res.Protocol, &res.Series, &res.Sequence, &res.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostedEntry{}, shared.E(shared.KindEntryNotFound, "entry %d does not exist", id)
		}
		return PostedEntry{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_code, debit_cents, credit_cents
FROM entry_lines WHERE entry_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PostedEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l EntryLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountCode, &l.DebitCents, &l.CreditCents); err != nil {
			return PostedEntry{}, err
		}
		res.Lines = append(res.Lines, l)
	}
	return res, rows.Err()
}

func (r *txRepository) HasReversal(ctx context.Context, originalID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM entry_reversals WHERE reversal_of=$1)`, originalID).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertReversalLink(ctx context.Context, entryID, originalID int64) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO entry_reversals (entry_id, reversal_of) VALUES ($1,$2)`, entryID, originalID)
	if db.IsUniqueViolation(err, "") {
		return shared.E(shared.KindAlreadyReversed, "entry %d has already been reversed", originalID)
	}
	return err
}

func (r *txRepository) AppendAudit(ctx context.Context, rec audit.Record) (audit.Record, error) {
	return r.chain.AppendTx(ctx, r.tx, rec)
}

func (r *txRepository) AccountMeta(ctx context.Context, code string) (bool, bool, error) {
	var isLeaf bool
	err := r.tx.QueryRow(ctx, `SELECT is_leaf FROM accounts WHERE code=$1`, code).Scan(&isLeaf)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, isLeaf, nil
}

func (r *txRepository) PeriodStatusForDate(ctx context.Context, date time.Time) (periods.Status, error) {
	var status periods.Status
	err := r.tx.QueryRow(ctx, `SELECT status FROM periods
WHERE start_date <= $1 AND end_date >= $1
ORDER BY month IS NULL ASC LIMIT 1`, date).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.StatusNone, nil
		}
		return periods.StatusNone, err
	}
	return status, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
