package periods

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Handler serves period administration. Closing a period with its closing
// entries is a separate flow; this surface only seeds, lists and reopens.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{year}", h.list)
	r.Post("/{year}/seed", h.seed)
	r.Post("/{year}/reopen", h.reopen)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	ps, err := h.service.List(r.Context(), year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": ps})
}

func (h *Handler) seed(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	if err := h.service.SeedYear(r.Context(), year); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"year": year, "status": "seeded"})
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	month, err := monthQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.service.Reopen(r.Context(), year, month); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "status": StatusOpen})
}

func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 9999 {
		h.writeError(w, shared.E(shared.KindInvalidInput, "invalid year %q", chi.URLParam(r, "year")))
		return 0, false
	}
	return year, true
}

func monthQuery(r *http.Request) (*int, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return nil, nil
	}
	m, err := strconv.Atoi(raw)
	if err != nil || m < 1 || m > 12 {
		return nil, shared.E(shared.KindInvalidInput, "invalid month %q", raw)
	}
	return &m, nil
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *shared.Error
	if errors.As(err, &le) {
		writeJSON(w, shared.HTTPStatus(le.Kind), map[string]any{"error": le.Kind, "detail": le.Detail})
		return
	}
	h.logger.Error("period request failed", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
