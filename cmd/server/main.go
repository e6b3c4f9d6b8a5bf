// Package main is the entry point for the investment ledger service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"investment-ledger/internal/config"
	"investment-ledger/internal/handler"
	"investment-ledger/internal/pkg/db"
	"investment-ledger/internal/repository"
	"investment-ledger/internal/service"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	accountRepo := repository.NewAccountRepository(dbPool.Pool)
	planRepo := repository.NewPlanRepository(dbPool.Pool)
	positionRepo := repository.NewPositionRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	rewardRepo := repository.NewRewardRepository(dbPool.Pool)

	// Initialize services
	referralService := service.NewReferralService(accountRepo)
	ledgerService := service.NewLedgerService(
		dbPool.Pool,
		accountRepo,
		planRepo,
		positionRepo,
		txRepo,
		rewardRepo,
		referralService,
		cfg.Ledger.CommitAttempts,
	)
	accountService := service.NewAccountService(accountRepo, txRepo, positionRepo)
	catalogService := service.NewCatalogService(planRepo)

	// Settlement listener: applies admin-reviewed deposits/withdrawals
	// exactly once, driven by the audit-trail notification trigger.
	settlementListener := service.NewSettlementListener(
		dbPool.Pool,
		ledgerService,
		txRepo,
		cfg.Settlement.Channel,
		cfg.Settlement.ReconnectBackoff,
		cfg.Settlement.SweepInterval,
	)
	settlementListener.Start(ctx)
	defer settlementListener.Stop()

	// Daily accrual job
	accrualService := service.NewAccrualService(
		ledgerService,
		accountRepo,
		positionRepo,
		txRepo,
		cfg.Accrual.Schedule,
	)
	if cfg.Accrual.Enabled {
		if err := accrualService.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start accrual job")
		}
		defer accrualService.Stop()
	}

	// HTTP server
	router := handler.NewRouter(ledgerService, accountService, catalogService)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
