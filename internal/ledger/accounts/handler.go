package accounts

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/primanota/primanota/internal/ledger/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{code}", h.get)
}

type createAccountBody struct {
	Code          string  `json:"code" validate:"required"`
	Name          string  `json:"name" validate:"required"`
	StatementType string  `json:"statement_type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	IsLeaf        bool    `json:"is_leaf"`
	ParentCode    *string `json:"parent_code,omitempty"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createAccountBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	acc, err := h.service.Create(r.Context(), CreateInput{
		Code:          body.Code,
		Name:          body.Name,
		StatementType: StatementType(body.StatementType),
		IsLeaf:        body.IsLeaf,
		ParentCode:    body.ParentCode,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accs, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accs})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *shared.Error
	if errors.As(err, &le) {
		writeJSON(w, shared.HTTPStatus(le.Kind), map[string]any{"error": le.Kind, "detail": le.Detail})
		return
	}
	h.logger.Error("account request failed", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
