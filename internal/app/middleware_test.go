package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenAuthAcceptsValidBearer(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	guard := TokenAuth(discardLogger(), string(hash))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/entries", nil)
	req.Header.Set("Authorization", "Bearer s3cret-token")
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenAuthRejectsBadToken(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	guard := TokenAuth(discardLogger(), string(hash))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/ledger/entries", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenAuthRejectsMissingHeader(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-token"), bcrypt.MinCost)
	require.NoError(t, err)
	guard := TokenAuth(discardLogger(), string(hash))(okHandler())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ledger/entries", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTokenAuthDisabledWithoutHash(t *testing.T) {
	guard := TokenAuth(discardLogger(), "")(okHandler())

	rec := httptest.NewRecorder()
	guard.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ledger/entries", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareStackSetsSecureHeaders(t *testing.T) {
	cfg := &Config{AppEnv: "development", RateLimitPerMinute: 1000}
	var handler http.Handler = okHandler()
	stack := MiddlewareStack(MiddlewareConfig{Logger: discardLogger(), Config: cfg})
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
