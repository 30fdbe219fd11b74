package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessportal/internal/adapters/storage"
	"assessportal/internal/auth"
	authrepo "assessportal/internal/auth/repository"
	"assessportal/internal/email"
	"assessportal/internal/events"
	"assessportal/internal/findings"
	apphttp "assessportal/internal/http"
	"assessportal/internal/http/router"
	"assessportal/internal/notification"
	"assessportal/internal/notification/outbox"
	"assessportal/internal/roster"
	rosterrepo "assessportal/internal/roster/repository"
	"assessportal/internal/scheduler"
	"assessportal/internal/workflow"
	"assessportal/migrations"
	"assessportal/platform/config"
	"assessportal/platform/db"
	"assessportal/platform/logger"
	"assessportal/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// withRetry runs fn up to attempts times with a quadratic backoff between
// tries. Startup dependencies (database, object storage) are often the last
// containers to come up, so the API waits for them instead of crash-looping.
func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

// ensureBucket wraps the retry logic for verifying a MinIO bucket exists.
func ensureBucket(ctx context.Context, log *logger.Logger, storageSvc storage.StorageService, name, bucket string) {
	if err := withRetry(ctx, log, name+" bucket", 5, 2*time.Second, func() error {
		return storageSvc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure bucket exists", "bucket", bucket, "error", err)
		panic("failed to ensure bucket exists: " + err.Error())
	}
}

// initOutboxDispatcher wires the asynq-backed outbox dispatcher when Redis is
// configured. Without Redis the notification module falls back to inline
// delivery, so a missing dispatcher is not fatal.
func initOutboxDispatcher(cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (*scheduler.NotificationOutboxDispatcher, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not set; notification outbox dispatcher disabled")
		return nil, func() {}
	}

	dispatcher, err := scheduler.NewNotificationOutboxDispatcher(cfg, pool, log)
	if err != nil {
		log.Error("failed to initialize outbox dispatcher", "error", err)
		panic("failed to initialize outbox dispatcher: " + err.Error())
	}

	return dispatcher, func() { _ = dispatcher.Close() }
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, ".")
	}); err != nil {
		log.Error("failed to run migrations", "error", err)
		panic("failed to run migrations: " + err.Error())
	}

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

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	var storageSvc storage.StorageService
	if cfg.IsMinIOEnabled() {
		svc, err := storage.NewMinIOService(cfg)
		if err != nil {
			log.Error("failed to initialize object storage", "error", err)
			panic("failed to initialize object storage: " + err.Error())
		}
		storageSvc = svc
		ensureBucket(ctx, log, storageSvc, "stage-attachments", cfg.GetMinioBucketStageAttachments())
	} else {
		log.Warn("MINIO_ENDPOINT not set; attachment presigning disabled")
	}

	var sender email.Sender
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg)
	} else {
		sender = email.NewLogSender(log)
	}

	rules, err := notification.LoadRules(cfg.GetNotificationRulesPath())
	if err != nil {
		log.Error("failed to load notification rules", "error", err)
		panic("failed to load notification rules: " + err.Error())
	}

	notificationModule := notification.New(sender, cfg, rules, log)
	notificationModule.SetOutbox(outbox.New(pool))
	notificationModule.SetUserDirectory(authrepo.New(pool))
	notificationModule.SetRosterDirectory(rosterrepo.New(pool))
	notificationModule.RegisterHandlers(eventBus)

	authModule := auth.NewModule(pool, cfg, val)
	rosterModule := roster.NewModule(pool, val, eventBus, log)
	findingsModule := findings.NewModule(pool, val, eventBus, log)
	workflowModule := workflow.NewModule(pool, val, eventBus, storageSvc, cfg.GetMinioBucketStageAttachments(), log)

	notificationModule.SetTimelineStaffReader(workflowModule.Service)
	workflowModule.Service.RegisterEventHandlers(eventBus)

	if err := workflowModule.Service.Restore(ctx); err != nil {
		log.Error("failed to restore timelines", "error", err)
		panic("failed to restore timelines: " + err.Error())
	}

	dispatcher, closeDispatcher := initOutboxDispatcher(cfg, pool, log)
	defer closeDispatcher()
	if dispatcher != nil {
		go dispatcher.Run(ctx)
	}

	// The overdue sweep runs inside the API process because the canonical
	// timeline state it scans lives in this process's store.
	sweep := scheduler.NewOverdueSweep(cfg, workflowModule.Service, log)
	go sweep.Run(ctx)

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			authModule,
			rosterModule,
			findingsModule,
			workflowModule,
			notificationModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = shutdownCtx
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}
