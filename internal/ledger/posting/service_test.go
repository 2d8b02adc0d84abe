package posting

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/shared"
	"github.com/primanota/primanota/internal/platform/db"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	entries     map[int64]Entry
	lines       map[int64][]EntryLine
	nextEntryID int64
	nextLineID  int64

	counters  map[string]int64
	idem      map[string]IdempotencyRecord
	reversals map[int64]int64 // reversal_of -> reversing entry id

	auditRecords []audit.Record

	accounts     map[string]bool // code -> is_leaf
	periodStatus periods.Status

	txError         error
	idemInsertErr   error                 // consumed by the next InsertIdempotency
	betweenAttempts func(*mockRepository) // runs after a rolled-back retryable attempt
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		entries:      make(map[int64]Entry),
		lines:        make(map[int64][]EntryLine),
		nextEntryID:  1,
		nextLineID:   1,
		counters:     make(map[string]int64),
		idem:         make(map[string]IdempotencyRecord),
		reversals:    make(map[int64]int64),
		accounts:     map[string]bool{"1410": true, "4100": true, "2321": true},
		periodStatus: periods.StatusOpen,
	}
}

// WithTx mirrors the real repository: every failed attempt rolls back, and
// retryable conflicts get a fresh attempt against the latest committed state.
func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		snap := m.snapshot()
		err = fn(ctx, &mockTxRepo{mock: m})
		if err == nil {
			return nil
		}
		m.restore(snap)
		if !db.IsRetryable(err) {
			return err
		}
		if m.betweenAttempts != nil {
			hook := m.betweenAttempts
			m.betweenAttempts = nil
			hook(m)
		}
	}
	return err
}

type repoState struct {
	entries      map[int64]Entry
	lines        map[int64][]EntryLine
	nextEntryID  int64
	nextLineID   int64
	counters     map[string]int64
	idem         map[string]IdempotencyRecord
	reversals    map[int64]int64
	auditRecords []audit.Record
}

func (m *mockRepository) snapshot() repoState {
	s := repoState{
		entries:      make(map[int64]Entry, len(m.entries)),
		lines:        make(map[int64][]EntryLine, len(m.lines)),
		nextEntryID:  m.nextEntryID,
		nextLineID:   m.nextLineID,
		counters:     make(map[string]int64, len(m.counters)),
		idem:         make(map[string]IdempotencyRecord, len(m.idem)),
		reversals:    make(map[int64]int64, len(m.reversals)),
		auditRecords: append([]audit.Record(nil), m.auditRecords...),
	}
	for k, v := range m.entries {
		s.entries[k] = v
	}
	for k, v := range m.lines {
		s.lines[k] = v
	}
	for k, v := range m.counters {
		s.counters[k] = v
	}
	for k, v := range m.idem {
		s.idem[k] = v
	}
	for k, v := range m.reversals {
		s.reversals[k] = v
	}
	return s
}

func (m *mockRepository) restore(s repoState) {
	m.entries = s.entries
	m.lines = s.lines
	m.nextEntryID = s.nextEntryID
	m.nextLineID = s.nextLineID
	m.counters = s.counters
	m.idem = s.idem
	m.reversals = s.reversals
	m.auditRecords = s.auditRecords
}

func (m *mockRepository) GetEntry(_ context.Context, id int64) (Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return Entry{}, shared.E(shared.KindEntryNotFound, "entry %d does not exist", id)
	}
	e.Lines = m.lines[id]
	return e, nil
}

func (m *mockRepository) ListEntries(_ context.Context, limit int) ([]Entry, error) {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *mockRepository) ReversalOf(_ context.Context, originalID int64) (int64, bool, error) {
	id, ok := m.reversals[originalID]
	return id, ok, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetIdempotency(_ context.Context, key string) (IdempotencyRecord, bool, error) {
	rec, ok := t.mock.idem[key]
	return rec, ok, nil
}

func (t *mockTxRepo) InsertIdempotency(_ context.Context, rec IdempotencyRecord) error {
	if err := t.mock.idemInsertErr; err != nil {
		t.mock.idemInsertErr = nil
		return err
	}
	if _, ok := t.mock.idem[rec.Key]; ok {
		return fmt.Errorf("posting: idempotency key %s raced a concurrent insert: %w", rec.Key, db.ErrTxConflict)
	}
	t.mock.idem[rec.Key] = rec
	return nil
}

func (t *mockTxRepo) AllocateProtocol(_ context.Context, year int, series string) (int64, error) {
	key := fmt.Sprintf("%d/%s", year, series)
	t.mock.counters[key]++
	return t.mock.counters[key], nil
}

func (t *mockTxRepo) InsertEntry(_ context.Context, e Entry) (Entry, error) {
	e.ID = t.mock.nextEntryID
	t.mock.nextEntryID++
	e.CreatedAt = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	t.mock.entries[e.ID] = e
	return e, nil
}

func (t *mockTxRepo) InsertLines(_ context.Context, entryID int64, lines []LineInput) ([]EntryLine, error) {
	out := make([]EntryLine, 0, len(lines))
	for _, l := range lines {
		el := EntryLine{
			ID:          t.mock.nextLineID,
			EntryID:     entryID,
			AccountCode: l.AccountCode,
			DebitCents:  l.DebitCents,
			CreditCents: l.CreditCents,
		}
		t.mock.nextLineID++
		out = append(out, el)
	}
	t.mock.lines[entryID] = out
	return out, nil
}

func (t *mockTxRepo) EntryExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.mock.entries[id]
	return ok, nil
}

func (t *mockTxRepo) EntryResult(_ context.Context, id int64) (PostedEntry, error) {
	e, ok := t.mock.entries[id]
	if !ok {
		return PostedEntry{}, shared.E(shared.KindEntryNotFound, "entry %d does not exist", id)
	}
	return PostedEntry{
		EntryID:   e.ID,
		Protocol:  e.Protocol,
		Series:    e.Series,
		Sequence:  e.Sequence,
		Lines:     t.mock.lines[id],
		CreatedAt: e.CreatedAt,
	}, nil
}

func (t *mockTxRepo) HasReversal(_ context.Context, originalID int64) (bool, error) {
	_, ok := t.mock.reversals[originalID]
	return ok, nil
}

func (t *mockTxRepo) InsertReversalLink(_ context.Context, entryID, originalID int64) error {
	if _, ok := t.mock.reversals[originalID]; ok {
		return shared.E(shared.KindAlreadyReversed, "entry %d has already been reversed", originalID)
	}
	t.mock.reversals[originalID] = entryID
	return nil
}

func (t *mockTxRepo) AppendAudit(_ context.Context, rec audit.Record) (audit.Record, error) {
	prev := audit.GenesisHash
	if n := len(t.mock.auditRecords); n > 0 {
		prev = t.mock.auditRecords[n-1].CurrHash
	}
	rec.ID = int64(len(t.mock.auditRecords) + 1)
	rec.PrevHash = prev
	rec.CurrHash = audit.ChainHash(prev, rec.Payload)
	t.mock.auditRecords = append(t.mock.auditRecords, rec)
	return rec, nil
}

func (t *mockTxRepo) AccountMeta(_ context.Context, code string) (bool, bool, error) {
	leaf, ok := t.mock.accounts[code]
	return ok, leaf, nil
}

func (t *mockTxRepo) PeriodStatusForDate(context.Context, time.Time) (periods.Status, error) {
	return t.mock.periodStatus, nil
}

func newTestService(repo *mockRepository) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, logger)
	svc.WithNow(func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) })
	return svc
}

// ============================================================================
// POST
// ============================================================================

func TestPostAssignsFirstProtocol(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	posted, err := svc.Post(context.Background(), balancedRequest())
	require.NoError(t, err)

	assert.Equal(t, "2025/GEN/000001", posted.Protocol)
	assert.Equal(t, int64(1), posted.Sequence)
	assert.Equal(t, "GEN", posted.Series)
	assert.False(t, posted.Replayed)
	assert.Len(t, posted.Lines, 3)

	stored := repo.entries[posted.EntryID]
	assert.Equal(t, "2025/GEN/000001", stored.Protocol)
	assert.Equal(t, "tester", stored.CreatedBy)
}

func TestPostSequencesPerYearAndSeries(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.Post(ctx, balancedRequest())
	require.NoError(t, err)
	second, err := svc.Post(ctx, balancedRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(2), second.Sequence)
	assert.Equal(t, "2025/GEN/000002", second.Protocol)

	adj := balancedRequest()
	adj.Series = "ADJ"
	third, err := svc.Post(ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, int64(1), third.Sequence, "each series counts independently")
	assert.Equal(t, "2025/ADJ/000001", third.Protocol)

	nextYear := balancedRequest()
	nextYear.Date = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	fourth, err := svc.Post(ctx, nextYear)
	require.NoError(t, err)
	assert.Equal(t, "2026/GEN/000001", fourth.Protocol, "counters reset per year")
}

func TestPostNormalizesSeries(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	req := balancedRequest()
	req.Series = "  gen "
	posted, err := svc.Post(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "GEN", posted.Series)

	req = balancedRequest()
	req.Series = ""
	posted, err = svc.Post(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "GEN", posted.Series)
}

func TestPostWritesAuditRecord(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	posted, err := svc.Post(context.Background(), balancedRequest())
	require.NoError(t, err)

	require.Len(t, repo.auditRecords, 1)
	rec := repo.auditRecords[0]
	assert.Equal(t, audit.ActionPost, rec.Action)
	assert.Equal(t, "tester", rec.Actor)
	require.NotNil(t, rec.EntryID)
	assert.Equal(t, posted.EntryID, *rec.EntryID)
	assert.Equal(t, audit.GenesisHash, rec.PrevHash)
	assert.True(t, audit.VerifyRecord(rec))
	assert.Contains(t, string(rec.Payload), posted.Protocol)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	req := balancedRequest()
	req.Date = time.Time{}
	_, err := svc.Post(ctx, req)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	req = balancedRequest()
	req.Actor = "  "
	_, err = svc.Post(ctx, req)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	req = balancedRequest()
	req.Description = ""
	_, err = svc.Post(ctx, req)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestPostValidationFailureAllocatesNothing(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	req := balancedRequest()
	req.Lines[0].DebitCents = 999 // unbalanced
	_, err := svc.Post(context.Background(), req)
	assert.ErrorIs(t, err, shared.ErrUnbalanced)

	assert.Empty(t, repo.entries)
	assert.Empty(t, repo.counters, "no protocol may be consumed by a rejected entry")
	assert.Empty(t, repo.auditRecords)
}

func TestPostRejectsClosedPeriod(t *testing.T) {
	repo := newMockRepository()
	repo.periodStatus = periods.StatusClosed
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), balancedRequest())
	assert.ErrorIs(t, err, shared.ErrPeriodClosed)
}

func TestPostHidesStorageErrors(t *testing.T) {
	repo := newMockRepository()
	repo.txError = fmt.Errorf("connection reset")
	svc := newTestService(repo)

	_, err := svc.Post(context.Background(), balancedRequest())
	assert.ErrorIs(t, err, shared.ErrPostingFailed)
	assert.NotContains(t, err.Error(), "connection reset")
}

// ============================================================================
// IDEMPOTENCY
// ============================================================================

func TestPostReplaysIdempotentRequest(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	req := balancedRequest()
	req.IdempotencyKey = "invoice-42"

	first, err := svc.Post(ctx, req)
	require.NoError(t, err)
	require.False(t, first.Replayed)

	second, err := svc.Post(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.EntryID, second.EntryID)
	assert.Equal(t, first.Protocol, second.Protocol)
	assert.Equal(t, first.Series, second.Series)
	assert.Equal(t, first.Sequence, second.Sequence)
	assert.Equal(t, first.Lines, second.Lines, "replay returns the persisted lines")
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "replay returns the original timestamp")

	assert.Len(t, repo.entries, 1, "replay must not create a second entry")
	assert.Equal(t, int64(1), repo.counters["2025/GEN"], "replay must not consume a protocol")
	assert.Len(t, repo.auditRecords, 1, "replay must not append to the audit chain")
}

func TestPostRejectsReusedKeyWithDifferentPayload(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	req := balancedRequest()
	req.IdempotencyKey = "invoice-42"
	_, err := svc.Post(ctx, req)
	require.NoError(t, err)

	other := balancedRequest()
	other.IdempotencyKey = "invoice-42"
	other.Description = "a different entry"
	_, err = svc.Post(ctx, other)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, repo.entries, 1)
}

func TestPostSameKeyRaceReplays(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	req := balancedRequest()
	req.IdempotencyKey = "invoice-42"

	// The key insert hits a unique violation because an identical request
	// committed between our key check and our insert; the engine must end
	// up replaying that winner, not reporting a conflict.
	repo.idemInsertErr = fmt.Errorf("posting: idempotency key %s raced a concurrent insert: %w",
		req.IdempotencyKey, db.ErrTxConflict)
	repo.betweenAttempts = func(*mockRepository) {
		if _, err := svc.Post(ctx, req); err != nil {
			t.Fatalf("competing post: %v", err)
		}
	}

	posted, err := svc.Post(ctx, req)
	require.NoError(t, err)
	assert.True(t, posted.Replayed)
	assert.Equal(t, "2025/GEN/000001", posted.Protocol)
	assert.Len(t, posted.Lines, 3)

	assert.Len(t, repo.entries, 1, "the race must not double-post")
	assert.Equal(t, int64(1), repo.counters["2025/GEN"], "the loser's protocol allocation must roll back")
	assert.Len(t, repo.auditRecords, 1)
}

func TestPostSameKeyRaceWithDifferentPayloadConflicts(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	req := balancedRequest()
	req.IdempotencyKey = "invoice-42"
	other := balancedRequest()
	other.IdempotencyKey = "invoice-42"
	other.Description = "a different entry"

	repo.idemInsertErr = fmt.Errorf("posting: idempotency key %s raced a concurrent insert: %w",
		req.IdempotencyKey, db.ErrTxConflict)
	repo.betweenAttempts = func(*mockRepository) {
		if _, err := svc.Post(ctx, other); err != nil {
			t.Fatalf("competing post: %v", err)
		}
	}

	_, err := svc.Post(ctx, req)
	assert.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	assert.Len(t, repo.entries, 1)
}

// ============================================================================
// REVERSAL
// ============================================================================

func TestReverseSwapsSidesAndLinks(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	original, err := svc.Post(ctx, balancedRequest())
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, original.EntryID, "auditor", "posted in error", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2025/GEN/000002", reversal.Protocol, "reversal is a normal entry in the same series")

	require.Len(t, reversal.Lines, 3)
	for i, l := range reversal.Lines {
		orig := original.Lines[i]
		assert.Equal(t, orig.AccountCode, l.AccountCode)
		assert.Equal(t, orig.CreditCents, l.DebitCents, "debit and credit must swap")
		assert.Equal(t, orig.DebitCents, l.CreditCents)
	}

	stored := repo.entries[reversal.EntryID]
	require.NotNil(t, stored.ReversalOf)
	assert.Equal(t, original.EntryID, *stored.ReversalOf)
	assert.Equal(t, reversal.EntryID, repo.reversals[original.EntryID])

	require.Len(t, repo.auditRecords, 2)
	assert.Equal(t, audit.ActionReverse, repo.auditRecords[1].Action)
}

func TestReverseDefaultsReasonAndDate(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	original, err := svc.Post(ctx, balancedRequest())
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, original.EntryID, "auditor", "", time.Time{})
	require.NoError(t, err)

	stored := repo.entries[reversal.EntryID]
	assert.Equal(t, "Reversal of 2025/GEN/000001", stored.Description)
	assert.Equal(t, time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC), stored.Date)
}

func TestReverseRejectsSecondReversal(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	original, err := svc.Post(ctx, balancedRequest())
	require.NoError(t, err)
	_, err = svc.Reverse(ctx, original.EntryID, "auditor", "", time.Time{})
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, original.EntryID, "auditor", "", time.Time{})
	assert.ErrorIs(t, err, shared.ErrAlreadyReversed)
}

func TestReverseRejectsUnknownEntry(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.Reverse(context.Background(), 404, "auditor", "", time.Time{})
	assert.ErrorIs(t, err, shared.ErrEntryNotFound)
}
