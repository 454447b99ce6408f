package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"

	"github.com/consultahub/consulta-server/internal/apperr"
	"github.com/consultahub/consulta-server/internal/database"
	"github.com/consultahub/consulta-server/internal/gate"
	"github.com/consultahub/consulta-server/internal/health"
	"github.com/consultahub/consulta-server/internal/httpapi"
	"github.com/consultahub/consulta-server/internal/idempotency"
	"github.com/consultahub/consulta-server/internal/jobs"
	jobhandlers "github.com/consultahub/consulta-server/internal/jobs/handlers"
	"github.com/consultahub/consulta-server/internal/moderation"
	"github.com/consultahub/consulta-server/internal/quota"
	"github.com/consultahub/consulta-server/internal/ratelimit"
	"github.com/consultahub/consulta-server/internal/repository"
	"github.com/consultahub/consulta-server/internal/roles"
	"github.com/consultahub/consulta-server/pkg/config"
	"github.com/consultahub/consulta-server/pkg/graceful"
	"github.com/consultahub/consulta-server/pkg/logger"
	appredis "github.com/consultahub/consulta-server/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	log.Info("starting consulta authorization engine", slog.String("env", cfg.AppEnv))

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Error("error closing database", slog.Any("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	redisClient, err := appredis.New(ctx, appredis.Config{
		Addr:            cfg.Redis.Addr,
		Password:        cfg.Redis.Password,
		DB:              cfg.Redis.DB,
		PoolSize:        cfg.Redis.PoolSize,
		MinIdleConns:    cfg.Redis.MinIdleConns,
		PoolTimeout:     cfg.Redis.PoolTimeout,
		IdleTimeout:     cfg.Redis.IdleTimeout,
		MaxRetries:      cfg.Redis.MaxRetries,
		MinRetryBackoff: cfg.Redis.MinRetryBackoff,
		MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			log.Error("error closing redis", slog.Any("error", cerr))
		}
	}()

	// Stores and services.
	roleRepo := repository.NewRoleRepository(db, log)
	moderationRepo := repository.NewModerationRepository(db, log)

	roleCache := roles.NewCache(appredis.NewMetricsClient(redisClient))
	roleSvc := roles.NewService(roleRepo, roleCache, log)
	registry := moderation.NewRegistry(moderationRepo, cfg.Quota.BlockOnRestrict, log)

	ledger, err := quota.OpenLedger(cfg.Quota.Backend, db, redisClient.Client, log)
	if err != nil {
		return fmt.Errorf("open quota ledger: %w", err)
	}
	quotaSvc := quota.NewService(ledger, roleSvc, quota.PolicyFromConfig(cfg.Quota), log)
	config.WatchQuotaPolicy(v, log, func(qc config.QuotaConfig) {
		quotaSvc.UpdatePolicy(quota.PolicyFromConfig(qc))
	})

	authGate := gate.New(registry, quotaSvc, log)

	// Burst limiter: Redis primary with an in-memory fallback.
	limiter := ratelimit.NewAdaptiveLimiter(
		ratelimit.NewRedisLimiter(redisClient.Client, log),
		ratelimit.NewMemoryLimiter(log),
		log,
	)
	rules := ratelimit.NewRules(cfg.RateLimit)

	cleaner := ratelimit.NewCleaner(redisClient.Client, log, 10*time.Minute)
	go cleaner.Run(ctx)

	idemStore := idempotency.NewRedisStore(redisClient.Client, log)
	idemManager := idempotency.NewManager(idemStore, log)
	go idempotency.NewCleaner(redisClient.Client, log, time.Hour).Run(ctx)

	// Background jobs: scheduled quota reset sweep.
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	worker := jobs.NewWorker(redisOpt, map[string]int{
		jobs.QueueCritical: 6,
		jobs.QueueDefault:  3,
		jobs.QueueLow:      1,
	}, cfg.Jobs.Concurrency, log)
	worker.RegisterHandler(jobs.TaskTypeQuotaSweep, jobhandlers.NewQuotaSweepHandler(quotaSvc, log))
	go func() {
		if err := worker.Run(); err != nil {
			log.Error("jobs worker stopped", slog.Any("error", err))
		}
	}()
	defer worker.Shutdown()

	scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.SweepCron, cfg.Jobs.SweepBatch, log)
	if err := scheduler.RegisterTasks(); err != nil {
		return fmt.Errorf("register scheduled tasks: %w", err)
	}
	scheduler.Run()
	defer scheduler.Shutdown()

	taskManager := jobs.NewManager(redisOpt, log)
	defer func() {
		if cerr := taskManager.Close(); cerr != nil {
			log.Error("error closing job manager", slog.Any("error", cerr))
		}
	}()

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(redisClient.Client))

	api := httpapi.NewServer(
		authGate,
		quotaSvc,
		roleSvc,
		registry,
		apperr.NewHandler(log, cfg.Sentry.Enabled),
		httpapi.Options{
			Limiter: limiter,
			Rules:   rules,
			Idem:    idemManager,
			Tasks:   taskManager,
			Checker: checker,
		},
		log,
	)

	port := cfg.HTTP.Port
	if port == "" {
		port = "8080"
	}
	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}

	srv := graceful.NewServer(log, &http.Server{
		Addr:              ":" + port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}, shutdownTimeout)

	return srv.ListenAndServe(ctx)
}
