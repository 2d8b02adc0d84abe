package books

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(poster *capturingPoster) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, NewService(poster, DefaultAccountMap()))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestSalesInvoiceEndpoint(t *testing.T) {
	poster := &capturingPoster{}
	router := newTestHandler(poster)

	body := `{"date":"2025-03-15","party":"ACME","doc_no":"INV-7","memo":"march services","net_amount":"100.00","vat_rate":"0.22","actor":"billing"}`
	req := httptest.NewRequest(http.MethodPost, "/sales-invoices", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"2025/GEN/000001"`)

	require.Len(t, poster.last.Lines, 3)
	assert.Equal(t, int64(12200), poster.last.Lines[0].DebitCents)
	assert.Equal(t, "SALES:2025-03-15:INV-7:march services", poster.last.IdempotencyKey)
}

func TestSalesInvoiceEndpointRejectsBadDate(t *testing.T) {
	router := newTestHandler(&capturingPoster{})

	body := `{"date":"15/03/2025","net_amount":"100.00","vat_rate":"0.22","actor":"billing"}`
	req := httptest.NewRequest(http.MethodPost, "/sales-invoices", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestCashPaymentEndpoint(t *testing.T) {
	poster := &capturingPoster{}
	router := newTestHandler(poster)

	body := `{"date":"2025-03-20","party":"Supplier","memo":"settle feb","amount":"250.00","actor":"treasury"}`
	req := httptest.NewRequest(http.MethodPost, "/cash-payments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, poster.last.Lines, 2)
	assert.Equal(t, "2310", poster.last.Lines[0].AccountCode)
	assert.Equal(t, "1432", poster.last.Lines[1].AccountCode)
	assert.Equal(t, int64(25000), poster.last.Lines[0].DebitCents)
}
