package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finsync/internal/alert"
	"finsync/internal/classify"
	"finsync/internal/config"
	"finsync/internal/networth"
	"finsync/internal/notify"
	"finsync/internal/platform/bankapi"
	"finsync/internal/platform/momoapi"
	"finsync/internal/storage"
	"finsync/internal/sync"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting finsync-sync")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Notifications are optional: without AMQP the engine still syncs, it
	// just stops publishing push triggers and budget alerts.
	var notifyClient *notify.Client
	if cfg.AMQPURL != "" {
		notifyClient, err = notify.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without notifications", "error", err)
			notifyClient = nil
		} else {
			defer notifyClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - notifications will not be published")
	}

	classifier := classify.New(repo)

	bankWorker := sync.NewBankWorker(bankapi.NewClient(cfg.BankAPIBaseURL, cfg.BankAPIToken), repo, classifier)
	momoWorker := sync.NewMobileMoneyWorker(momoapi.NewClient(cfg.MobileMoneyAPIBaseURL, cfg.MobileMoneyAPIKey), repo, classifier)

	nwCache := networth.NewCache(cfg.NetWorthCacheTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The handler runs on timer goroutines, possibly during shutdown after
	// the run context is cancelled; the publish carries its own timeout.
	debouncer := alert.NewDebouncer(cfg.AlertDebounceWindow, func(userID string) {
		if notifyClient == nil {
			return
		}
		if err := notifyClient.PublishBudgetAlert(context.Background(), userID); err != nil {
			logger.Error("Failed to publish budget alert", "user_id", userID, "error", err)
		}
	})
	defer debouncer.Flush()

	var notifier sync.Notifier
	if notifyClient != nil {
		notifier = notifyClient
	}

	orchestrator := sync.NewOrchestrator(repo, bankWorker, momoWorker, notifier, debouncer, nwCache)

	opts := sync.DefaultOptions()
	opts.ForceSync = cfg.ForceSync
	opts.BankStaleThreshold = cfg.BankStaleThreshold
	opts.MobileMoneyStaleThreshold = cfg.MobileMoneyStaleThreshold
	opts.MaxConcurrentBank = cfg.MaxConcurrentBank
	opts.MaxConcurrentMobileMoney = cfg.MaxConcurrentMobileMoney
	opts.Timeout = cfg.SyncTimeout

	logger.Info("Sync engine configured",
		"interval", cfg.SyncInterval,
		"bank_threshold", cfg.BankStaleThreshold,
		"momo_threshold", cfg.MobileMoneyStaleThreshold,
		"sqlite_db", cfg.SQLiteDBPath)

	runOnce := func(now time.Time) {
		report, err := orchestrator.Run(ctx, opts)
		if err != nil {
			logger.Error("Sync run failed", "error", err)
			return
		}
		logger.Info("Sync run complete",
			"run_id", report.RunID,
			"accounts", report.TotalAccounts(),
			"transactions", report.TotalTransactionsSynced(),
			"new", report.TotalNewTransactions(),
			"failures", report.FailureCount(),
			"duration", report.Duration(),
			"next_run", now.Add(cfg.SyncInterval).Format("15:04:05"))
	}

	logger.Info("Running initial sync...")
	runOnce(time.Now())

	if cfg.RunOnce {
		logger.Info("Single-pass mode, exiting")
		return
	}

	ticker := time.NewTicker(cfg.SyncInterval)
	defer ticker.Stop()

	cleanTicker := time.NewTicker(cfg.NetWorthCacheTTL)
	defer cleanTicker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runOnce(now)
			case <-cleanTicker.C:
				if n := nwCache.CleanExpired(); n > 0 {
					logger.Info("Expired net-worth snapshots dropped", "count", n)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()

	// Give an in-flight run a moment to persist its health updates; accounts
	// still InProgress after this are recovered by the stale-lock path.
	time.Sleep(2 * time.Second)
	logger.Info("finsync-sync shutdown complete")
}
