package audit

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/primanota/primanota/internal/ledger/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	repo    Repository
}

func NewHandler(logger *slog.Logger, service *Service, repo Repository) *Handler {
	return &Handler{logger: logger, service: service, repo: repo}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/verify", h.verify)
	r.Get("/records", h.records)
}

// verify recomputes the hash chain over [from, to]. The happy response
// carries the verified range so callers can log what was actually checked.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	from := queryInt64(r, "from", 1)
	to := queryInt64(r, "to", 0)

	if err := h.service.VerifyChain(r.Context(), from, to); err != nil {
		var le *shared.Error
		if errors.As(err, &le) && le.Kind == shared.KindTamperDetected {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status": "tampered",
				"detail": le.Detail,
			})
			return
		}
		h.logger.Error("audit verification failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	last, err := h.service.LastID(r.Context())
	if err != nil {
		h.logger.Error("audit tail lookup failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"from":   from,
		"to":     to,
		"last":   last,
	})
}

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	from := queryInt64(r, "from", 1)
	to := queryInt64(r, "to", 0)
	recs, err := h.repo.Range(r.Context(), from, to)
	if err != nil {
		h.logger.Error("audit range query failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func queryInt64(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
