package posting

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/primanota/primanota/internal/ledger/shared"
)

// Handler wires the posting engine's JSON endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.postEntry)
	r.Get("/", h.listEntries)
	r.Get("/{id}", h.getEntry)
	r.Post("/{id}/reverse", h.reverseEntry)
}

type lineBody struct {
	AccountCode string `json:"account_code" validate:"required"`
	DebitCents  int64  `json:"debit_cents" validate:"gte=0"`
	CreditCents int64  `json:"credit_cents" validate:"gte=0"`
}

type taxBody struct {
	TaxableCents int64 `json:"taxable_cents" validate:"gte=0"`
	RateBps      int64 `json:"rate_bps" validate:"gte=0"`
	TaxCents     int64 `json:"tax_cents" validate:"gte=0"`
}

type postEntryBody struct {
	Date            string     `json:"date" validate:"required,datetime=2006-01-02"`
	Series          string     `json:"series"`
	Document        string     `json:"document"`
	DocumentDate    string     `json:"document_date" validate:"omitempty,datetime=2006-01-02"`
	Party           string     `json:"party"`
	Description     string     `json:"description" validate:"required"`
	Lines           []lineBody `json:"lines" validate:"required,min=1,dive"`
	Tax             *taxBody   `json:"tax"`
	IdempotencyKey  string     `json:"idempotency_key"`
	ClientReference string     `json:"client_reference"`
	Actor           string     `json:"actor" validate:"required"`
}

type postedEntryResponse struct {
	EntryID   int64       `json:"entry_id"`
	Protocol  string      `json:"protocol"`
	Series    string      `json:"series"`
	Sequence  int64       `json:"sequence"`
	Lines     []EntryLine `json:"lines,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Replayed  bool        `json:"replayed"`
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	var body postEntryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "%v", err))
		return
	}

	req, err := body.toRequest()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	posted, err := h.service.Post(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if posted.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toResponse(posted))
}

func (h *Handler) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "entry id must be numeric"))
		return
	}
	var body struct {
		Actor  string `json:"actor" validate:"required"`
		Reason string `json:"reason"`
		Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "malformed JSON body"))
		return
	}
	if err := h.validator.Struct(body); err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "%v", err))
		return
	}
	var date time.Time
	if body.Date != "" {
		date, _ = time.Parse("2006-01-02", body.Date)
	}

	posted, err := h.service.Reverse(r.Context(), id, body.Actor, body.Reason, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(posted))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, r, shared.E(shared.KindInvalidInput, "entry id must be numeric"))
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.ListEntries(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (b postEntryBody) toRequest() (PostRequest, error) {
	date, err := time.Parse("2006-01-02", b.Date)
	if err != nil {
		return PostRequest{}, shared.E(shared.KindInvalidInput, "date %q is not a valid ISO date", b.Date)
	}
	req := PostRequest{
		Date:            date,
		Series:          b.Series,
		Document:        b.Document,
		Party:           b.Party,
		Description:     b.Description,
		IdempotencyKey:  b.IdempotencyKey,
		ClientReference: b.ClientReference,
		Actor:           b.Actor,
	}
	if b.DocumentDate != "" {
		dd, err := time.Parse("2006-01-02", b.DocumentDate)
		if err != nil {
			return PostRequest{}, shared.E(shared.KindInvalidInput, "document_date %q is not a valid ISO date", b.DocumentDate)
		}
		req.DocumentDate = &dd
	}
	for _, l := range b.Lines {
		req.Lines = append(req.Lines, LineInput(l))
	}
	if b.Tax != nil {
		req.Tax = &TaxDetail{TaxableCents: b.Tax.TaxableCents, RateBps: b.Tax.RateBps, TaxCents: b.Tax.TaxCents}
	}
	return req, nil
}

func toResponse(p PostedEntry) postedEntryResponse {
	return postedEntryResponse{
		EntryID:   p.EntryID,
		Protocol:  p.Protocol,
		Series:    p.Series,
		Sequence:  p.Sequence,
		Lines:     p.Lines,
		CreatedAt: p.CreatedAt,
		Replayed:  p.Replayed,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *shared.Error
	if !errors.As(err, &le) {
		correlation := uuid.NewString()
		h.logger.Error("unhandled posting error",
			slog.String("correlation_id", correlation),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":          string(shared.KindPostingFailed),
			"message":        "internal error",
			"correlation_id": correlation,
		})
		return
	}
	writeJSON(w, shared.HTTPStatus(le.Kind), map[string]any{
		"error":   string(le.Kind),
		"message": le.Detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
