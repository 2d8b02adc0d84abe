package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskVerifyAuditChain re-verifies the audit hash chain end to end.
	TaskVerifyAuditChain = "audit:verify_chain"
	// TaskLedgerIntegrity scans committed entries for balance violations.
	TaskLedgerIntegrity = "ledger:integrity"
)

// VerifyChainPayload bounds a chain verification run. Zero values mean the
// whole chain.
type VerifyChainPayload struct {
	FromID int64 `json:"from_id"`
	ToID   int64 `json:"to_id"`
}

// NewVerifyChainTask constructs an audit chain verification task.
func NewVerifyChainTask(payload VerifyChainPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVerifyAuditChain, data), nil
}

// NewLedgerIntegrityTask constructs a ledger integrity scan task.
func NewLedgerIntegrityTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLedgerIntegrity, nil), nil
}
