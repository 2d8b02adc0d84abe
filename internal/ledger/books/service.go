package books

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/primanota/primanota/internal/ledger/posting"
)

// Poster is the posting engine surface the facade needs.
type Poster interface {
	Post(ctx context.Context, req posting.PostRequest) (posting.PostedEntry, error)
}

// Service builds and posts journal entries for the common bookkeeping
// operations. All amounts arrive as decimals, get quantized to two places
// and enter the core as integer cents; the facade never bypasses the
// posting engine.
type Service struct {
	poster Poster
	acc    AccountMap
}

func NewService(poster Poster, acc AccountMap) *Service {
	return &Service{poster: poster, acc: acc}
}

// SalesInvoiceInput describes a customer invoice: receivable gross,
// revenue net, VAT payable.
type SalesInvoiceInput struct {
	Date      time.Time
	Customer  string
	DocNo     string
	DocDate   *time.Time
	Memo      string
	NetAmount decimal.Decimal
	VATRate   decimal.Decimal
	Actor     string
}

// BuildSalesInvoice constructs the balanced posting request without
// submitting it.
func (s *Service) BuildSalesInvoice(in SalesInvoiceInput) posting.PostRequest {
	net := in.NetAmount.Round(2)
	vat := net.Mul(in.VATRate).Round(2)
	total := net.Add(vat)

	return posting.PostRequest{
		Date:         in.Date,
		Document:     in.DocNo,
		DocumentDate: in.DocDate,
		Party:        in.Customer,
		Description:  in.Memo,
		Lines: []posting.LineInput{
			{AccountCode: s.acc.TradeReceivables, DebitCents: cents(total)},
			{AccountCode: s.acc.SalesRevenue, CreditCents: cents(net)},
			{AccountCode: s.acc.VATPayable, CreditCents: cents(vat)},
		},
		Tax: &posting.TaxDetail{
			TaxableCents: cents(net),
			RateBps:      rateBps(in.VATRate),
			TaxCents:     cents(vat),
		},
		Actor: in.Actor,
	}
}

// PostSalesInvoice builds and posts a sales invoice with a deterministic
// idempotency key so document-level retries collapse into one entry.
func (s *Service) PostSalesInvoice(ctx context.Context, in SalesInvoiceInput) (posting.PostedEntry, error) {
	req := s.BuildSalesInvoice(in)
	req.IdempotencyKey = defaultKey("SALES", in.Date, in.DocNo, in.Memo)
	return s.poster.Post(ctx, req)
}

// PurchaseInvoiceInput describes a supplier invoice: expense net, VAT
// receivable, payable gross.
type PurchaseInvoiceInput struct {
	Date           time.Time
	Supplier       string
	DocNo          string
	DocDate        *time.Time
	Memo           string
	NetAmount      decimal.Decimal
	VATRate        decimal.Decimal
	ExpenseAccount string
	Actor          string
}

func (s *Service) BuildPurchaseInvoice(in PurchaseInvoiceInput) posting.PostRequest {
	net := in.NetAmount.Round(2)
	vat := net.Mul(in.VATRate).Round(2)
	total := net.Add(vat)

	expense := in.ExpenseAccount
	if expense == "" {
		expense = s.acc.ServiceExpenses
	}

	return posting.PostRequest{
		Date:         in.Date,
		Document:     in.DocNo,
		DocumentDate: in.DocDate,
		Party:        in.Supplier,
		Description:  in.Memo,
		Lines: []posting.LineInput{
			{AccountCode: expense, DebitCents: cents(net)},
			{AccountCode: s.acc.VATReceivable, DebitCents: cents(vat)},
			{AccountCode: s.acc.TradePayables, CreditCents: cents(total)},
		},
		Tax: &posting.TaxDetail{
			TaxableCents: cents(net),
			RateBps:      rateBps(in.VATRate),
			TaxCents:     cents(vat),
		},
		Actor: in.Actor,
	}
}

func (s *Service) PostPurchaseInvoice(ctx context.Context, in PurchaseInvoiceInput) (posting.PostedEntry, error) {
	req := s.BuildPurchaseInvoice(in)
	req.IdempotencyKey = defaultKey("PURCHASE", in.Date, in.DocNo, in.Memo)
	return s.poster.Post(ctx, req)
}

// CashMovementInput covers receipts from customers and payments to
// suppliers against the bank account.
type CashMovementInput struct {
	Date        time.Time
	Party       string
	Memo        string
	Amount      decimal.Decimal
	BankAccount string
	Actor       string
}

func (s *Service) BuildCashReceipt(in CashMovementInput) posting.PostRequest {
	amt := cents(in.Amount.Round(2))
	return posting.PostRequest{
		Date:        in.Date,
		Party:       in.Party,
		Description: in.Memo,
		Lines: []posting.LineInput{
			{AccountCode: s.bank(in.BankAccount), DebitCents: amt},
			{AccountCode: s.acc.TradeReceivables, CreditCents: amt},
		},
		Actor: in.Actor,
	}
}

func (s *Service) PostCashReceipt(ctx context.Context, in CashMovementInput) (posting.PostedEntry, error) {
	req := s.BuildCashReceipt(in)
	req.IdempotencyKey = defaultKey("RECEIPT", in.Date, "", in.Memo)
	return s.poster.Post(ctx, req)
}

func (s *Service) BuildCashPayment(in CashMovementInput) posting.PostRequest {
	amt := cents(in.Amount.Round(2))
	return posting.PostRequest{
		Date:        in.Date,
		Party:       in.Party,
		Description: in.Memo,
		Lines: []posting.LineInput{
			{AccountCode: s.acc.TradePayables, DebitCents: amt},
			{AccountCode: s.bank(in.BankAccount), CreditCents: amt},
		},
		Actor: in.Actor,
	}
}

func (s *Service) PostCashPayment(ctx context.Context, in CashMovementInput) (posting.PostedEntry, error) {
	req := s.BuildCashPayment(in)
	req.IdempotencyKey = defaultKey("PAYMENT", in.Date, "", in.Memo)
	return s.poster.Post(ctx, req)
}

// BankFeeInput charges bank costs against the bank account.
type BankFeeInput struct {
	Date        time.Time
	Memo        string
	Amount      decimal.Decimal
	BankAccount string
	Actor       string
}

func (s *Service) BuildBankFee(in BankFeeInput) posting.PostRequest {
	amt := cents(in.Amount.Round(2))
	return posting.PostRequest{
		Date:        in.Date,
		Description: in.Memo,
		Lines: []posting.LineInput{
			{AccountCode: s.acc.BankCharges, DebitCents: amt},
			{AccountCode: s.bank(in.BankAccount), CreditCents: amt},
		},
		Actor: in.Actor,
	}
}

func (s *Service) PostBankFee(ctx context.Context, in BankFeeInput) (posting.PostedEntry, error) {
	req := s.BuildBankFee(in)
	req.IdempotencyKey = defaultKey("BANKFEE", in.Date, "", in.Memo)
	return s.poster.Post(ctx, req)
}

func (s *Service) bank(override string) string {
	if override != "" {
		return override
	}
	return s.acc.BankAccount
}

// cents converts a 2dp decimal amount to integer minor units.
func cents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// rateBps converts a fractional VAT rate (0.22) to basis points (2200).
func rateBps(rate decimal.Decimal) int64 {
	return rate.Mul(decimal.NewFromInt(10000)).Round(0).IntPart()
}

// defaultKey derives a deterministic idempotency key from the document
// identity, so a retried submission of the same document replays instead
// of double-posting.
func defaultKey(prefix string, date time.Time, docNo, memo string) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefix, date.Format("2006-01-02"), docNo, memo)
}
