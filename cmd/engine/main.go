package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadflow_backend/internal/email"
	apphttp "leadflow_backend/internal/http"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/notifier"
	remrepo "leadflow_backend/internal/reminders/repository"
	"leadflow_backend/internal/reports"
	"leadflow_backend/internal/schedule"
	sellerrepo "leadflow_backend/internal/sellers/repository"
	"leadflow_backend/internal/source"
	"leadflow_backend/internal/source/sheets"
	syncpkg "leadflow_backend/internal/sync"
	"leadflow_backend/internal/telegram"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting engine", "env", cfg.Env, "addr", cfg.HTTPAddr, "poll_interval", cfg.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	policy := schedule.DefaultPolicy()
	if path := cfg.GetSchedulePolicyPath(); path != "" {
		policy, err = schedule.LoadPolicy(path)
		if err != nil {
			log.Error("failed to load schedule policy", "path", path, "error", err)
			panic("failed to load schedule policy: " + err.Error())
		}
		log.Info("schedule policy loaded", "path", path)
	}

	// ========================================================================
	// Composition
	// ========================================================================

	transport := sheets.NewClient(cfg, log)
	adapter := source.NewAdapter(transport, source.NewNormalizer(val), cfg, log)

	leadRepo := leadrepo.New(pool)
	sellerRepo := sellerrepo.New(pool)
	taskRepo := remrepo.New(pool)
	statusRepo := syncpkg.NewStatusRepository(pool)

	telegramClient := telegram.NewClient(cfg, log)
	if telegramClient == nil {
		log.Warn("TELEGRAM_BOT_TOKEN not configured; deliveries will fail until set")
	}
	emailSender := email.NewSMTPSender(cfg)

	var sellerChannel, adminChannel notifier.Channel
	if telegramClient != nil {
		sellerChannel = telegramClient
		adminChannel = telegramClient
	} else {
		sellerChannel = unconfiguredChannel{}
		adminChannel = unconfiguredChannel{}
	}
	var emailChannel notifier.Channel
	if emailSender != nil {
		emailChannel = emailSender
	}

	dispatch := notifier.New(taskRepo, sellerChannel, adminChannel, emailChannel, cfg, log)
	courtesy := notifier.NewCourtesy(adminChannel, sellerRepo, cfg, log)
	courtesy.Register(eventBus)

	engine := schedule.NewEngine(policy)
	reconciler := syncpkg.NewReconciler(leadRepo, sellerRepo, taskRepo, engine, adapter, eventBus, log)
	runner := syncpkg.NewRunner(
		adapter, reconciler, dispatch, statusRepo, taskRepo,
		eventBus, log, cfg.GetPollInterval(), cfg.GetDeliveryMaxAttempts(),
	)

	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	startReports(ctx, cfg, pool, adminChannel, log)

	// ========================================================================
	// HTTP
	// ========================================================================

	router := apphttp.NewRouter(apphttp.App{
		Config:     cfg,
		Logger:     log,
		Health:     db.NewPoolAdapter(pool),
		Status:     statusRepo,
		Syncer:     runner,
		Sellers:    sellerRepo,
		Leads:      leadRepo,
		Tasks:      taskRepo,
		AttemptCap: cfg.GetDeliveryMaxAttempts(),
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- router.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		<-runErr
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("runner stopped", "error", err)
			panic("runner stopped: " + err.Error())
		}
	}
}

// startReports wires the asynq scheduler and worker when Redis is
// configured. The engine runs fine without them.
func startReports(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, channel reports.Channel, log *logger.Logger) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; KPI reports disabled")
		return
	}

	scheduler, err := reports.NewScheduler(cfg, log)
	if err != nil {
		log.Error("failed to initialize report scheduler", "error", err)
		return
	}
	worker, err := reports.NewWorker(cfg, cfg, pool, channel, log)
	if err != nil {
		log.Error("failed to initialize report worker", "error", err)
		return
	}

	go scheduler.Run(ctx)
	go worker.Run(ctx)
	log.Info("KPI reports scheduled", "queue", cfg.GetAsynqQueueName())
}

// unconfiguredChannel stands in when no Telegram token is present. Every
// send fails, which keeps tasks open and visible instead of dropping them.
type unconfiguredChannel struct{}

func (unconfiguredChannel) Send(context.Context, string, string) error {
	return errors.New("notification channel not configured")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
