package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// ChainVerifier is the slice of the audit service the job needs.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, fromID, toID int64) error
	LastID(ctx context.Context) (int64, error)
}

// HandleVerifyChainTask re-verifies the audit chain. A tampered chain is a
// standing condition, not a transient failure, so the task is not retried;
// the error is logged loudly and surfaced to the asynq dashboard once.
func HandleVerifyChainTask(verifier ChainVerifier, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload VerifyChainPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		from := payload.FromID
		if from == 0 {
			from = 1
		}

		if err := verifier.VerifyChain(ctx, from, payload.ToID); err != nil {
			if errors.Is(err, shared.ErrTamperDetected) {
				logger.Error("audit chain verification FAILED",
					slog.Int64("from_id", from),
					slog.Int64("to_id", payload.ToID),
					slog.Any("error", err))
				return errors.Join(err, asynq.SkipRetry)
			}
			return err
		}

		last, err := verifier.LastID(ctx)
		if err != nil {
			return err
		}
		logger.Info("audit chain verified",
			slog.Int64("from_id", from),
			slog.Int64("last_id", last))
		return nil
	}
}
