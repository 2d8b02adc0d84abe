package closing

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
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/{year}/close", h.closePeriod)
	r.Post("/{year}/finalize", h.finalizeYear)
	r.Post("/{year}/open", h.openYear)
}

type closeBody struct {
	Actor       string            `json:"actor"`
	Month       *int              `json:"month,omitempty"`
	Adjustments []AdjustmentInput `json:"adjustments,omitempty"`
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	var body closeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if body.Month != nil && (*body.Month < 1 || *body.Month > 12) {
		h.writeError(w, shared.E(shared.KindInvalidInput, "month must be 1..12"))
		return
	}
	res, err := h.service.ClosePeriod(r.Context(), year, body.Month, body.Actor, body.Adjustments)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type actorBody struct {
	Actor string `json:"actor"`
}

func (h *Handler) finalizeYear(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	var body actorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.service.FinalizeYear(r.Context(), year, body.Actor); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "status": "finalized"})
}

func (h *Handler) openYear(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	var body actorBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	posted, err := h.service.OpenYear(r.Context(), year, body.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := map[string]any{"year": year, "status": "opened"}
	if posted != nil {
		resp["opening_entry"] = posted
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1900 || year > 9999 {
		h.writeError(w, shared.E(shared.KindInvalidInput, "invalid year %q", chi.URLParam(r, "year")))
		return 0, false
	}
	return year, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *shared.Error
	if errors.As(err, &le) {
		writeJSON(w, shared.HTTPStatus(le.Kind), map[string]any{"error": le.Kind, "detail": le.Detail})
		return
	}
	h.logger.Error("closure request failed", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
