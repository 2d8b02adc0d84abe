package books

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/primanota/primanota/internal/ledger/posting"
	"github.com/primanota/primanota/internal/ledger/shared"
)

// Handler exposes the facade's document operations over HTTP. Each posts
// through the engine with the facade's deterministic idempotency key, so
// resubmitting the same document replays the original entry.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales-invoices", h.salesInvoice)
	r.Post("/purchase-invoices", h.purchaseInvoice)
	r.Post("/cash-receipts", h.cashReceipt)
	r.Post("/cash-payments", h.cashPayment)
	r.Post("/bank-fees", h.bankFee)
}

type invoiceBody struct {
	Date           string          `json:"date"`
	Party          string          `json:"party"`
	DocNo          string          `json:"doc_no"`
	DocDate        string          `json:"doc_date,omitempty"`
	Memo           string          `json:"memo"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	VATRate        decimal.Decimal `json:"vat_rate"`
	ExpenseAccount string          `json:"expense_account,omitempty"`
	Actor          string          `json:"actor"`
}

func (h *Handler) salesInvoice(w http.ResponseWriter, r *http.Request) {
	var body invoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	date, docDate, ok := h.dates(w, body.Date, body.DocDate)
	if !ok {
		return
	}
	posted, err := h.service.PostSalesInvoice(r.Context(), SalesInvoiceInput{
		Date:      date,
		Customer:  body.Party,
		DocNo:     body.DocNo,
		DocDate:   docDate,
		Memo:      body.Memo,
		NetAmount: body.NetAmount,
		VATRate:   body.VATRate,
		Actor:     body.Actor,
	})
	h.respond(w, posted, err)
}

func (h *Handler) purchaseInvoice(w http.ResponseWriter, r *http.Request) {
	var body invoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	date, docDate, ok := h.dates(w, body.Date, body.DocDate)
	if !ok {
		return
	}
	posted, err := h.service.PostPurchaseInvoice(r.Context(), PurchaseInvoiceInput{
		Date:           date,
		Supplier:       body.Party,
		DocNo:          body.DocNo,
		DocDate:        docDate,
		Memo:           body.Memo,
		NetAmount:      body.NetAmount,
		VATRate:        body.VATRate,
		ExpenseAccount: body.ExpenseAccount,
		Actor:          body.Actor,
	})
	h.respond(w, posted, err)
}

type movementBody struct {
	Date        string          `json:"date"`
	Party       string          `json:"party,omitempty"`
	Memo        string          `json:"memo"`
	Amount      decimal.Decimal `json:"amount"`
	BankAccount string          `json:"bank_account,omitempty"`
	Actor       string          `json:"actor"`
}

func (h *Handler) cashReceipt(w http.ResponseWriter, r *http.Request) {
	in, ok := h.movement(w, r)
	if !ok {
		return
	}
	posted, err := h.service.PostCashReceipt(r.Context(), in)
	h.respond(w, posted, err)
}

func (h *Handler) cashPayment(w http.ResponseWriter, r *http.Request) {
	in, ok := h.movement(w, r)
	if !ok {
		return
	}
	posted, err := h.service.PostCashPayment(r.Context(), in)
	h.respond(w, posted, err)
}

func (h *Handler) bankFee(w http.ResponseWriter, r *http.Request) {
	var body movementBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	date, _, ok := h.dates(w, body.Date, "")
	if !ok {
		return
	}
	posted, err := h.service.PostBankFee(r.Context(), BankFeeInput{
		Date:        date,
		Memo:        body.Memo,
		Amount:      body.Amount,
		BankAccount: body.BankAccount,
		Actor:       body.Actor,
	})
	h.respond(w, posted, err)
}

func (h *Handler) movement(w http.ResponseWriter, r *http.Request) (CashMovementInput, bool) {
	var body movementBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return CashMovementInput{}, false
	}
	date, _, ok := h.dates(w, body.Date, "")
	if !ok {
		return CashMovementInput{}, false
	}
	return CashMovementInput{
		Date:        date,
		Party:       body.Party,
		Memo:        body.Memo,
		Amount:      body.Amount,
		BankAccount: body.BankAccount,
		Actor:       body.Actor,
	}, true
}

func (h *Handler) dates(w http.ResponseWriter, date, docDate string) (time.Time, *time.Time, bool) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		h.writeError(w, shared.E(shared.KindInvalidInput, "invalid date %q, want YYYY-MM-DD", date))
		return time.Time{}, nil, false
	}
	if docDate == "" {
		return d, nil, true
	}
	dd, err := time.Parse("2006-01-02", docDate)
	if err != nil {
		h.writeError(w, shared.E(shared.KindInvalidInput, "invalid doc_date %q, want YYYY-MM-DD", docDate))
		return time.Time{}, nil, false
	}
	return d, &dd, true
}

func (h *Handler) respond(w http.ResponseWriter, posted posting.PostedEntry, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if posted.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, posted)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var le *shared.Error
	if errors.As(err, &le) {
		writeJSON(w, shared.HTTPStatus(le.Kind), map[string]any{"error": le.Kind, "detail": le.Detail})
		return
	}
	h.logger.Error("document posting failed", slog.Any("error", err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
