package audit

import (
	"encoding/json"
	"time"
)

// Action tags for audit records.
const (
	ActionPost         = "POST"
	ActionReverse      = "REVERSE"
	ActionClosePeriod  = "CLOSE_PERIOD"
	ActionReopenPeriod = "REOPEN_PERIOD"
	ActionFinalizeYear = "FINALIZE_YEAR"
	ActionOpenYear     = "OPEN_YEAR"
)

// Record is one link in the append-only audit chain. Payload holds the exact
// serialized bytes the hashes were computed over.
type Record struct {
	ID        int64           `json:"id"`
	EntryID   *int64          `json:"entry_id,omitempty"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	PrevHash  string          `json:"prev_hash"`
	CurrHash  string          `json:"curr_hash"`
	CreatedAt time.Time       `json:"created_at"`
}
