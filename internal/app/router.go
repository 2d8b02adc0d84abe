package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/primanota/primanota/internal/ledger/accounts"
	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/books"
	"github.com/primanota/primanota/internal/ledger/closing"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/posting"
	"github.com/primanota/primanota/internal/ledger/reports"
	"github.com/primanota/primanota/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	PostingHandler  *posting.Handler
	BooksHandler    *books.Handler
	AccountsHandler *accounts.Handler
	PeriodsHandler  *periods.Handler
	ClosingHandler  *closing.Handler
	AuditHandler    *audit.Handler
	ReportsHandler  *reports.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	auth := TokenAuth(params.Logger, params.Config.APITokenHash)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Route("/ledger/entries", params.PostingHandler.MountRoutes)
			r.Route("/books", params.BooksHandler.MountRoutes)
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
			r.Route("/periods", func(r chi.Router) {
				params.PeriodsHandler.MountRoutes(r)
				params.ClosingHandler.MountRoutes(r)
			})
		})
		r.Route("/audit", params.AuditHandler.MountRoutes)
		r.Route("/reports", params.ReportsHandler.MountRoutes)
		if params.JobHandler != nil {
			r.Route("/jobs", params.JobHandler.MountRoutes)
		}
	})

	return r
}
