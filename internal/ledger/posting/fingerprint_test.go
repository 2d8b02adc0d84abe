package posting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintStableAcrossRetries(t *testing.T) {
	a := balancedRequest()
	b := balancedRequest()

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestFingerprintChangesWithSemanticFields(t *testing.T) {
	base, err := Fingerprint(balancedRequest())
	require.NoError(t, err)

	mutations := map[string]func(*PostRequest){
		"date":        func(r *PostRequest) { r.Date = r.Date.AddDate(0, 0, 1) },
		"series":      func(r *PostRequest) { r.Series = "ADJ" },
		"description": func(r *PostRequest) { r.Description = "different" },
		"actor":       func(r *PostRequest) { r.Actor = "someone-else" },
		"amount":      func(r *PostRequest) { r.Lines[0].DebitCents++ },
		"account":     func(r *PostRequest) { r.Lines[0].AccountCode = "1411" },
		"tax":         func(r *PostRequest) { r.Tax = &TaxDetail{TaxableCents: 100, RateBps: 2100, TaxCents: 21} },
		"reversal":    func(r *PostRequest) { r.ReversalOf = 7 },
	}
	for name, mutate := range mutations {
		req := balancedRequest()
		mutate(&req)
		fp, err := Fingerprint(req)
		require.NoError(t, err)
		assert.NotEqual(t, base, fp, "mutating %s must change the fingerprint", name)
	}
}

func TestFingerprintIgnoresIdempotencyKey(t *testing.T) {
	a := balancedRequest()
	a.IdempotencyKey = "key-1"
	b := balancedRequest()
	b.IdempotencyKey = "key-2"

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprintCoversDocumentDate(t *testing.T) {
	base, err := Fingerprint(balancedRequest())
	require.NoError(t, err)

	req := balancedRequest()
	dd := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	req.DocumentDate = &dd
	fp, err := Fingerprint(req)
	require.NoError(t, err)
	assert.NotEqual(t, base, fp)
}
