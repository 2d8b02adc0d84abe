package posting

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// fingerprintPayload is the canonical shape hashed for idempotency checks.
// It covers the caller's semantic input only: engine-assigned fields
// (protocol, timestamps) are excluded so retries of a logically identical
// request fingerprint identically.
type fingerprintPayload struct {
	Date            string       `json:"date"`
	Series          string       `json:"series"`
	Document        string       `json:"document,omitempty"`
	DocumentDate    string       `json:"document_date,omitempty"`
	Party           string       `json:"party,omitempty"`
	Description     string       `json:"description"`
	Lines           []LineInput  `json:"lines"`
	Tax             *TaxDetail   `json:"tax,omitempty"`
	ReversalOf      int64        `json:"reversal_of,omitempty"`
	ClientReference string       `json:"client_reference,omitempty"`
	Actor           string       `json:"actor"`
}

// Fingerprint returns the hex SHA-256 of the request's canonical
// serialization. Struct-based json.Marshal keys are emitted in a fixed
// order, so two requests with the same semantic content always hash equal.
func Fingerprint(req PostRequest) (string, error) {
	p := fingerprintPayload{
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
	}
	if req.DocumentDate != nil {
		p.DocumentDate = req.DocumentDate.Format("2006-01-02")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("posting: fingerprint: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
