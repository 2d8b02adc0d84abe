package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenesisHash is the fixed previous-hash of the first record in the chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ChainHash computes SHA-256(prevHash ‖ payload) as lowercase hex. Each
// record's hash depends on its predecessor's, so rewriting any historical
// payload breaks every hash from that point forward.
func ChainHash(prevHash string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyRecord reports whether a record's stored hash matches the hash
// recomputed from its stored payload and previous-hash.
func VerifyRecord(r Record) bool {
	return r.CurrHash == ChainHash(r.PrevHash, r.Payload)
}
