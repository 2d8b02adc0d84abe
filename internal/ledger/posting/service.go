package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/shared"
)

// Service is the posting engine: the sole write path into the journal.
// Every Post/Reverse call is one serializable transaction — idempotency
// check, validation, protocol allocation, entry insert, reversal linkage,
// audit append and idempotency record commit or roll back together.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post validates and persists a proposed journal entry. Any failure leaves
// the store exactly as it was; a replayed idempotency key returns the
// original result without allocating anything new.
func (s *Service) Post(ctx context.Context, req PostRequest) (PostedEntry, error) {
	if err := req.Normalize(); err != nil {
		return PostedEntry{}, err
	}

	fingerprint := ""
	if req.IdempotencyKey != "" {
		fp, err := Fingerprint(req)
		if err != nil {
			return PostedEntry{}, shared.E(shared.KindInvalidInput, "request cannot be fingerprinted: %v", err)
		}
		fingerprint = fp
	}

	var result PostedEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if req.IdempotencyKey != "" {
			existing, found, err := tx.GetIdempotency(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if existing.Fingerprint != fingerprint {
					return shared.E(shared.KindIdempotencyConflict,
						"key %s was already used with a different payload", req.IdempotencyKey)
				}
				// Replay: hand back the original result, lines and creation
				// timestamp included, rebuilt from the stored entry row.
				res, err := tx.EntryResult(ctx, existing.EntryID)
				if err != nil {
					return err
				}
				res.Replayed = true
				result = res
				return nil
			}
		}

		if err := Validate(ctx, req, txAccounts{tx}, txPeriods{tx}); err != nil {
			return err
		}

		if req.ReversalOf > 0 {
			exists, err := tx.EntryExists(ctx, req.ReversalOf)
			if err != nil {
				return err
			}
			if !exists {
				return shared.E(shared.KindEntryNotFound, "entry %d does not exist", req.ReversalOf)
			}
			reversed, err := tx.HasReversal(ctx, req.ReversalOf)
			if err != nil {
				return err
			}
			if reversed {
				return shared.E(shared.KindAlreadyReversed, "entry %d has already been reversed", req.ReversalOf)
			}
		}

		year := req.Year()
		seq, err := tx.AllocateProtocol(ctx, year, req.Series)
		if err != nil {
			return err
		}
		protocol := FormatProtocol(year, req.Series, seq)

		entry := Entry{
			Date:            req.Date,
			Year:            year,
			Protocol:        protocol,
			Series:          req.Series,
			Sequence:        seq,
			Document:        req.Document,
			DocumentDate:    req.DocumentDate,
			Party:           req.Party,
			Description:     req.Description,
			CreatedBy:       req.Actor,
			ClientReference: req.ClientReference,
			Tax:             req.Tax,
		}
		if req.ReversalOf > 0 {
			entry.ReversalOf = &req.ReversalOf
		}
		entry, err = tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}

		lines, err := tx.InsertLines(ctx, entry.ID, req.Lines)
		if err != nil {
			return err
		}

		action := audit.ActionPost
		if req.ReversalOf > 0 {
			if err := tx.InsertReversalLink(ctx, entry.ID, req.ReversalOf); err != nil {
				return err
			}
			action = audit.ActionReverse
		}

		payload, err := auditPayload(req, protocol, entry.ID, s.now())
		if err != nil {
			return err
		}
		if _, err := tx.AppendAudit(ctx, audit.Record{
			EntryID: &entry.ID,
			Action:  action,
			Actor:   req.Actor,
			Payload: payload,
		}); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			if err := tx.InsertIdempotency(ctx, IdempotencyRecord{
				Key:         req.IdempotencyKey,
				Fingerprint: fingerprint,
				EntryID:     entry.ID,
				Protocol:    protocol,
			}); err != nil {
				return err
			}
		}

		result = PostedEntry{
			EntryID:   entry.ID,
			Protocol:  protocol,
			Series:    req.Series,
			Sequence:  seq,
			Lines:     lines,
			CreatedAt: entry.CreatedAt,
		}
		return nil
	})
	if err != nil {
		return PostedEntry{}, s.surface(err)
	}

	s.logger.Info("entry posted",
		slog.Int64("entry_id", result.EntryID),
		slog.String("protocol", result.Protocol),
		slog.Bool("replayed", result.Replayed))
	return result, nil
}

// Reverse posts a mirror of the original entry with every line's debit and
// credit swapped, linked back via reversal_of, through the full pipeline.
func (s *Service) Reverse(ctx context.Context, originalID int64, actor, reason string, date time.Time) (PostedEntry, error) {
	original, err := s.repo.GetEntry(ctx, originalID)
	if err != nil {
		return PostedEntry{}, s.surface(err)
	}
	if _, reversed, err := s.repo.ReversalOf(ctx, originalID); err != nil {
		return PostedEntry{}, s.surface(err)
	} else if reversed {
		return PostedEntry{}, shared.E(shared.KindAlreadyReversed, "entry %d has already been reversed", originalID)
	}

	if date.IsZero() {
		date = s.now()
	}
	if reason == "" {
		reason = fmt.Sprintf("Reversal of %s", original.Protocol)
	}

	lines := make([]LineInput, 0, len(original.Lines))
	for _, l := range original.Lines {
		lines = append(lines, LineInput{
			AccountCode: l.AccountCode,
			DebitCents:  l.CreditCents,
			CreditCents: l.DebitCents,
		})
	}

	return s.Post(ctx, PostRequest{
		Date:        date,
		Series:      original.Series,
		Document:    original.Document,
		Party:       original.Party,
		Description: reason,
		Lines:       lines,
		ReversalOf:  originalID,
		Actor:       actor,
	})
}

// GetEntry returns a committed entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (Entry, error) {
	e, err := s.repo.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, s.surface(err)
	}
	return e, nil
}

// ListEntries returns the most recent committed entries.
func (s *Service) ListEntries(ctx context.Context, limit int) ([]Entry, error) {
	return s.repo.ListEntries(ctx, limit)
}

// surface keeps kinded ledger errors intact and hides raw storage errors
// behind a generic posting failure.
func (s *Service) surface(err error) error {
	var le *shared.Error
	if errors.As(err, &le) {
		return le
	}
	s.logger.Error("posting failed", slog.Any("error", err))
	return shared.E(shared.KindPostingFailed, "posting could not be completed")
}

// auditPayloadBody is the canonical audit snapshot: the full entry payload
// including the allocated protocol, hashed into the chain.
type auditPayloadBody struct {
	Entry    fingerprintPayload `json:"entry"`
	EntryID  int64              `json:"entry_id"`
	Protocol string             `json:"protocol"`
	PostedAt string             `json:"posted_at"`
}

func auditPayload(req PostRequest, protocol string, entryID int64, at time.Time) ([]byte, error) {
	body := auditPayloadBody{
		Entry: fingerprintPayload{
			Date:            req.Date.Format("2006-01-02"),
			Series:          req.Series,
			Document:        req.Document,
			Party:           req.Party,
			Description:     req.Description,
			Lines:           req.Lines,
			Tax:             req.Tax,
			ReversalOf:      req.ReversalOf,
			ClientReference: req.ClientReference,
			Actor:           req.Actor,
		},
		EntryID:  entryID,
		Protocol: protocol,
		PostedAt: at.UTC().Format(time.RFC3339),
	}
	if req.DocumentDate != nil {
		body.Entry.DocumentDate = req.DocumentDate.Format("2006-01-02")
	}
	return json.Marshal(body)
}

// txAccounts and txPeriods adapt the transaction's consistent reads to the
// validator's lookup contracts.
type txAccounts struct{ tx TxRepository }

func (a txAccounts) Exists(ctx context.Context, code string) (bool, error) {
	exists, _, err := a.tx.AccountMeta(ctx, code)
	return exists, err
}

func (a txAccounts) IsLeaf(ctx context.Context, code string) (bool, error) {
	_, leaf, err := a.tx.AccountMeta(ctx, code)
	return leaf, err
}

type txPeriods struct{ tx TxRepository }

func (p txPeriods) StatusForDate(ctx context.Context, date time.Time) (periods.Status, error) {
	return p.tx.PeriodStatusForDate(ctx, date)
}
