// Package main is the entry point for the satwallet API server.
//
// It loads configuration, connects the Postgres pool, wires the condition
// engine (parser, evaluator, result cache), the autopay scheduler, the price
// feed, and the HTTP chassis, then starts the periodic tick alongside the
// HTTP listener.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM):
// the scheduler stops before the HTTP server drains, so no trigger fires
// while the process is going down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"

	"satwallet/internal/api/handlers"
	"satwallet/internal/autopay"
	"satwallet/internal/conditions"
	"satwallet/internal/config"
	"satwallet/internal/core"
	"satwallet/internal/db"
	"satwallet/internal/external"
	"satwallet/internal/types"
	"satwallet/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("satwallet API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"tick_interval", cfg.Autopay.TickInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	ruleRepo := db.NewAutopayRuleRepository(pool)
	walletRepo := db.NewWalletRepository(pool)

	signalSrc := wallet.NewSignal(walletRepo, nil)

	priceFeed := external.NewPriceFeed(external.PriceFeedConfig{
		Endpoint:  cfg.PriceFeed.Endpoint,
		UserAgent: cfg.PriceFeed.UserAgent,
		MaxAge:    cfg.PriceFeed.MaxAge,
		Logger:    logger.With("component", "pricefeed"),
	})

	evaluator := conditions.NewEvaluator(conditions.EvaluatorConfig{
		CacheTTL: cfg.Autopay.CacheTTL,
		Prices:   priceFeed,
		Events:   signalSrc,
		Logger:   logger.With("component", "evaluator"),
	})

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	engine := autopay.NewService(autopay.ServiceConfig{
		Evaluator: evaluator,
		Store:     ruleRepo,
		Trigger:   paymentTrigger(walletRepo, logger),
		Metrics:   srv.Metrics,
		Logger:    logger.With("component", "autopay"),
	})
	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("restoring monitored rules: %w", err)
	}

	autopayHandler := handlers.NewAutopayHandler(ruleRepo, engine, srv.Validator, logger)
	walletsHandler := handlers.NewWalletsHandler(walletRepo, signalSrc, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		autopayHandler.RegisterRoutes,
		walletsHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	scheduler := newScheduler(ctx, cfg, engine, priceFeed, logger)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// paymentTrigger returns the trigger action for fired rules: an outgoing
// ledger entry against the rule's wallet, tagged with the rule ID.
func paymentTrigger(repo *db.WalletRepository, logger *slog.Logger) autopay.TriggerFunc {
	return func(ctx context.Context, rule types.AutopayRule) error {
		ruleID := rule.ID
		tx := &types.Transaction{
			WalletID:     rule.WalletID,
			Direction:    types.TxOutgoing,
			AmountBTC:    rule.AmountBTC,
			Counterparty: rule.Recipient,
			RuleID:       &ruleID,
		}
		if err := repo.RecordTransaction(ctx, tx); err != nil {
			return fmt.Errorf("recording autopay payment: %w", err)
		}
		logger.InfoContext(ctx, "autopay payment recorded",
			"rule_id", rule.ID,
			"wallet_id", rule.WalletID,
			"amount_btc", rule.AmountBTC,
			"recipient", rule.Recipient,
		)
		return nil
	}
}

// newScheduler builds the cron runner that drives the evaluation tick and
// the background price refresh.
func newScheduler(ctx context.Context, cfg *config.Config, engine *autopay.Service, feed *external.PriceFeed, logger *slog.Logger) *cron.Cron {
	c := cron.New()

	c.Schedule(cron.Every(cfg.Autopay.TickInterval), cron.FuncJob(func() {
		engine.Tick(ctx)
	}))
	c.Schedule(cron.Every(cfg.PriceFeed.RefreshInterval), cron.FuncJob(func() {
		if err := feed.Refresh(ctx); err != nil {
			logger.WarnContext(ctx, "price refresh failed", "error", err)
		}
	}))

	return c
}

// newPool connects the pgx pool with the configured sizing.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// runHTTPServer starts the HTTP listener and blocks until the context is
// cancelled or the server fails, then drains within the shutdown timeout.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining http server: %w", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process-wide slog logger writing JSON to stdout.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
