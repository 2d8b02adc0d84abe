package reports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/primanota/primanota/internal/ledger/shared"
)

const cacheTTL = 60 * time.Second

// Handler serves the report endpoints. Trial balance responses are cached
// in redis and concurrent cache misses for the same range collapse into a
// single database query.
type Handler struct {
	logger  *slog.Logger
	service *Service
	cache   *redis.Client
	group   singleflight.Group
}

func NewHandler(logger *slog.Logger, service *Service, cache *redis.Client) *Handler {
	return &Handler{logger: logger, service: service, cache: cache}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/trial-balance.csv", h.trialBalanceCSV)
	r.Get("/accounts/{code}/ledger", h.accountLedger)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	key := "reports:tb:" + from.Format("2006-01-02") + ":" + to.Format("2006-01-02")
	if cached, ok := h.cacheGet(r.Context(), key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(cached)
		return
	}

	v, err, _ := h.group.Do(key, func() (any, error) {
		rows, err := h.service.TrialBalance(r.Context(), from, to)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"rows": rows, "from": from, "to": to})
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	body := v.([]byte)
	h.cacheSet(r.Context(), key, body)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (h *Handler) trialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	body, err := h.service.TrialBalanceCSV(r.Context(), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="trial-balance.csv"`)
	_, _ = w.Write(body)
}

func (h *Handler) accountLedger(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	rows, err := h.service.AccountLedger(r.Context(), chi.URLParam(r, "code"), from, to)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows})
}

func (h *Handler) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	body, err := h.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return body, true
}

func (h *Handler) cacheSet(ctx context.Context, key string, body []byte) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, key, body, cacheTTL).Err(); err != nil {
		h.logger.Warn("report cache write failed", slog.Any("error", err))
	}
}

func parseRange(r *http.Request) (time.Time, time.Time, error) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, shared.E(shared.KindInvalidInput, "from and to query parameters are required")
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, shared.E(shared.KindInvalidInput, "from %q is not a valid ISO date", fromStr)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, shared.E(shared.KindInvalidInput, "to %q is not a valid ISO date", toStr)
	}
	return from, to, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *shared.Error
	if errors.As(err, &le) {
		http.Error(w, le.Detail, shared.HTTPStatus(le.Kind))
		return
	}
	h.logger.Error("report query failed", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
