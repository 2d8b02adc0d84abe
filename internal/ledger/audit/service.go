package audit

import (
	"context"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Service verifies the committed chain. Verification never mutates anything:
// tampering is detected, not repaired.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// VerifyChain recomputes every hash in [fromID, toID] (toID 0 = chain end)
// and checks the prev-hash linkage between consecutive records. The first
// mismatching record id is reported via TAMPER_DETECTED.
//
// When fromID points mid-chain the first record's prev-hash is trusted as
// the anchor; a full verification starts from id 1, where prev-hash must be
// the genesis value.
func (s *Service) VerifyChain(ctx context.Context, fromID, toID int64) error {
	recs, err := s.repo.Range(ctx, fromID, toID)
	if err != nil {
		return err
	}
	var prev string
	for i, rec := range recs {
		if i == 0 {
			if fromID <= 1 && rec.PrevHash != GenesisHash {
				return shared.E(shared.KindTamperDetected, "record %d does not anchor to genesis", rec.ID)
			}
			prev = rec.PrevHash
		}
		if rec.PrevHash != prev {
			return shared.E(shared.KindTamperDetected, "record %d breaks the chain linkage", rec.ID)
		}
		if !VerifyRecord(rec) {
			return shared.E(shared.KindTamperDetected, "record %d payload does not match its hash", rec.ID)
		}
		prev = rec.CurrHash
	}
	return nil
}

// VerifyAll verifies the entire chain from its first record.
func (s *Service) VerifyAll(ctx context.Context) error {
	return s.VerifyChain(ctx, 1, 0)
}

// LastID returns the id of the newest record, 0 when the chain is empty.
func (s *Service) LastID(ctx context.Context) (int64, error) {
	return s.repo.LastID(ctx)
}
