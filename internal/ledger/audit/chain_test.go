package audit

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primanota/primanota/internal/ledger/shared"
)

func TestChainHashDeterministic(t *testing.T) {
	a := ChainHash(GenesisHash, []byte(`{"n":1}`))
	b := ChainHash(GenesisHash, []byte(`{"n":1}`))
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c := ChainHash(GenesisHash, []byte(`{"n":2}`))
	assert.NotEqual(t, a, c)

	d := ChainHash(a, []byte(`{"n":1}`))
	assert.NotEqual(t, a, d, "same payload under a different predecessor hashes differently")
}

func TestVerifyRecord(t *testing.T) {
	payload := []byte(`{"entry_id":1}`)
	rec := Record{PrevHash: GenesisHash, Payload: payload, CurrHash: ChainHash(GenesisHash, payload)}
	assert.True(t, VerifyRecord(rec))

	rec.Payload = []byte(`{"entry_id":2}`)
	assert.False(t, VerifyRecord(rec), "rewriting the payload must invalidate the hash")
}

// fakeChainRepo holds a prebuilt chain in memory.
type fakeChainRepo struct {
	records []Record
}

func newFakeChain(n int) *fakeChainRepo {
	repo := &fakeChainRepo{}
	prev := GenesisHash
	for i := 1; i <= n; i++ {
		payload := []byte(fmt.Sprintf(`{"entry_id":%d}`, i))
		rec := Record{
			ID:       int64(i),
			Action:   ActionPost,
			Actor:    "tester",
			Payload:  payload,
			PrevHash: prev,
			CurrHash: ChainHash(prev, payload),
		}
		prev = rec.CurrHash
		repo.records = append(repo.records, rec)
	}
	return repo
}

func (f *fakeChainRepo) Range(_ context.Context, fromID, toID int64) ([]Record, error) {
	var out []Record
	for _, r := range f.records {
		if r.ID < fromID {
			continue
		}
		if toID != 0 && r.ID > toID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeChainRepo) LastID(context.Context) (int64, error) {
	if len(f.records) == 0 {
		return 0, nil
	}
	return f.records[len(f.records)-1].ID, nil
}

func TestVerifyChainAcceptsIntactChain(t *testing.T) {
	svc := NewService(newFakeChain(5))
	require.NoError(t, svc.VerifyAll(context.Background()))
}

func TestVerifyChainAcceptsEmptyChain(t *testing.T) {
	svc := NewService(newFakeChain(0))
	require.NoError(t, svc.VerifyAll(context.Background()))
}

func TestVerifyChainDetectsRewrittenPayload(t *testing.T) {
	repo := newFakeChain(5)
	repo.records[2].Payload = []byte(`{"entry_id":3,"amount":"doctored"}`)

	err := NewService(repo).VerifyAll(context.Background())
	require.ErrorIs(t, err, shared.ErrTamperDetected)
	assert.Contains(t, err.Error(), "record 3")
}

func TestVerifyChainDetectsBrokenLinkage(t *testing.T) {
	repo := newFakeChain(5)
	// Replace record 3 with a self-consistent record that ignores record 2.
	payload := []byte(`{"entry_id":3}`)
	repo.records[2].PrevHash = GenesisHash
	repo.records[2].CurrHash = ChainHash(GenesisHash, payload)

	err := NewService(repo).VerifyAll(context.Background())
	require.ErrorIs(t, err, shared.ErrTamperDetected)
	assert.Contains(t, err.Error(), "record 3")
}

func TestVerifyChainDetectsWrongGenesis(t *testing.T) {
	repo := newFakeChain(3)
	repo.records[0].PrevHash = ChainHash(GenesisHash, []byte("bogus"))
	repo.records[0].CurrHash = ChainHash(repo.records[0].PrevHash, repo.records[0].Payload)

	err := NewService(repo).VerifyAll(context.Background())
	require.ErrorIs(t, err, shared.ErrTamperDetected)
	assert.Contains(t, err.Error(), "genesis")
}

func TestVerifyChainMidChainAnchorsOnFirstRecord(t *testing.T) {
	repo := newFakeChain(5)
	svc := NewService(repo)

	// A partial range trusts its first record's prev-hash as the anchor.
	require.NoError(t, svc.VerifyChain(context.Background(), 3, 5))

	last, err := svc.LastID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}
