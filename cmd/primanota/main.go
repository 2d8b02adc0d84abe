package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/primanota/primanota/internal/app"
	"github.com/primanota/primanota/internal/ledger/accounts"
	"github.com/primanota/primanota/internal/ledger/audit"
	"github.com/primanota/primanota/internal/ledger/books"
	"github.com/primanota/primanota/internal/ledger/closing"
	"github.com/primanota/primanota/internal/ledger/periods"
	"github.com/primanota/primanota/internal/ledger/posting"
	"github.com/primanota/primanota/internal/ledger/reports"
	"github.com/primanota/primanota/internal/platform/cache"
	"github.com/primanota/primanota/internal/platform/db"
	"github.com/primanota/primanota/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, report caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	accountsRepo := accounts.NewRepository(pool)
	accountsService := accounts.NewService(accountsRepo)
	accountsHandler := accounts.NewHandler(logger, accountsService)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo, logger)
	periodsHandler := periods.NewHandler(logger, periodsService)

	chainWriter := audit.NewWriter()
	auditRepo := audit.NewRepository(pool)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService, auditRepo)

	postingRepo := posting.NewRepository(pool, chainWriter)
	postingService := posting.NewService(postingRepo, logger)
	postingHandler := posting.NewHandler(logger, postingService)

	booksService := books.NewService(postingService, books.DefaultAccountMap())
	booksHandler := books.NewHandler(logger, booksService)

	reportsRepo := reports.NewRepository(pool)
	reportsService := reports.NewService(reportsRepo)
	reportsHandler := reports.NewHandler(logger, reportsService, redisClient)

	closingService := closing.NewService(postingService, reportsService, periodsService, audit.NewAppender(pool), logger)
	closingHandler := closing.NewHandler(logger, closingService)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobClient, err := jobs.NewClient(redisOpts)
		if err != nil {
			logger.Error("init job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, jobClient, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		PostingHandler:  postingHandler,
		BooksHandler:    booksHandler,
		AccountsHandler: accountsHandler,
		PeriodsHandler:  periodsHandler,
		ClosingHandler:  closingHandler,
		AuditHandler:    auditHandler,
		ReportsHandler:  reportsHandler,
		JobHandler:      jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
