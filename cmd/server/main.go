package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"checkout.backend/internal/config"
	"checkout.backend/internal/infrastructure/accounts"
	"checkout.backend/internal/infrastructure/datasources/postgres"
	"checkout.backend/internal/infrastructure/gateway"
	"checkout.backend/internal/infrastructure/jobs"
	"checkout.backend/internal/infrastructure/mailer"
	"checkout.backend/internal/infrastructure/metrics"
	"checkout.backend/internal/infrastructure/migrate"
	"checkout.backend/internal/infrastructure/repositories"
	"checkout.backend/internal/interfaces/http/handlers"
	"checkout.backend/internal/interfaces/http/middleware"
	"checkout.backend/internal/usecases"
	"checkout.backend/pkg/crypto"
	"checkout.backend/pkg/logger"
	"checkout.backend/pkg/redis"
	"checkout.backend/pkg/retry"
)

var (
	loadDotenv    = godotenv.Load
	loadCfg       = config.Load
	initLog       = logger.Init
	initRedis     = redis.Init
	openDB        = postgres.Open
	runMigrations = migrate.RunMigrations
	runServer     = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB      = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	initLog(cfg.Server.Env)
	defer logger.Sync()
	ctx := context.Background()
	logger.Info(ctx, "Logger initialized", zap.String("env", cfg.Server.Env))

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		logger.Warn(ctx, "Database not available, endpoints will return errors", zap.Error(err))
	} else {
		logger.Info(ctx, "Connected to PostgreSQL via GORM")
		if cfg.Database.AutoMigrate {
			if err := runMigrations(db, cfg.Database.MigrationsPath); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}
	}

	// the sweep lease is the only Redis user; without it sweeps run unlocked
	var locker usecases.SweepLocker
	if cfg.Redis.URL != "" {
		if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
			logger.Warn(ctx, "Redis unavailable, sweep lease disabled", zap.Error(err))
		} else {
			locker = redis.NewLocker(redis.GetClient(), "checkout:lock:")
			logger.Info(ctx, "Redis initialized")
		}
	}

	sealer, err := crypto.NewSealer(cfg.Security.CredentialKey)
	if err != nil {
		return fmt.Errorf("invalid credential encryption key: %w", err)
	}
	if crypto.IsZeroKey(cfg.Security.CredentialKey) {
		if cfg.Server.Env != "development" {
			return errors.New("CREDENTIAL_ENCRYPTION_KEY is all zeros; set a random key outside development")
		}
		logger.Warn(ctx, "Using all-zero credential encryption key, development only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.New(registry)

	var mail usecases.Mailer = mailer.LogMailer{}
	if cfg.Mail.SendGridAPIKey != "" {
		mail = mailer.NewSendGridMailer(cfg.Mail)
	} else {
		logger.Warn(ctx, "SENDGRID_API_KEY not set, emails are only logged")
	}

	// Initialize repositories
	saleRepo := repositories.NewSaleRepository(db)
	checkoutAttemptRepo := repositories.NewCheckoutAttemptRepository(db)
	webhookLogRepo := repositories.NewWebhookLogRepository(db)
	queueRepo := repositories.NewProvisioningQueueRepository(db)

	// Initialize usecases
	dispatcher := usecases.NewNotificationDispatcher(mail, cfg.Mail.LoginURL)
	queue := usecases.NewProvisioningQueue(queueRepo, pipelineMetrics)
	reconciler := usecases.NewOrderReconciler(
		saleRepo,
		checkoutAttemptRepo,
		queue,
		retry.Fixed(cfg.Reconciler.MaxAttempts, cfg.Reconciler.Delay),
		cfg.Reconciler.EnrichmentSkew,
		pipelineMetrics,
	)
	webhookUsecase := usecases.NewWebhookUsecase(
		webhookLogRepo,
		gateway.ParseNotification,
		gateway.NewSignatureVerifier(cfg.Gateway.WebhookSecret),
		gateway.NewClient(cfg.Gateway),
		reconciler,
		dispatcher,
		pipelineMetrics,
	)
	worker := usecases.NewProvisioningWorker(
		queueRepo,
		saleRepo,
		accounts.NewClient(cfg.Accounts),
		dispatcher,
		sealer,
		usecases.WorkerConfig{
			MaxRetries: cfg.Provisioning.MaxRetries,
			BatchSize:  cfg.Provisioning.BatchSize,
			StaleAfter: cfg.Provisioning.StaleAfter,
		},
		pipelineMetrics,
	)
	sweepUsecase := usecases.NewSweepUsecase(
		saleRepo,
		queue,
		worker,
		locker,
		usecases.SweepConfig{Lookback: cfg.Cron.Lookback, LockTTL: cfg.Cron.LockTTL},
		pipelineMetrics,
	)

	// Start background jobs
	jobCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sweepJob *jobs.ReconcileSweepJob
	if cfg.Cron.InProcess {
		sweepJob = jobs.NewReconcileSweepJob(sweepUsecase, cfg.Cron.Interval)
		go sweepJob.Start(jobCtx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerRoutes(r, routeDeps{
		healthHandler:  handlers.NewHealthHandler(sqlDB),
		webhookHandler: handlers.NewWebhookHandler(webhookUsecase),
		cronHandler:    handlers.NewCronHandler(sweepUsecase),
		cronAuth:       middleware.CronAuthMiddleware(cfg.Cron.Secret),
		metrics:        metricsHandler(registry),
	})

	for _, route := range r.Routes() {
		logger.Debug(ctx, "Route registered", zap.String("method", route.Method), zap.String("path", route.Path))
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info(ctx, "Shutting down server")
		if sweepJob != nil {
			sweepJob.Stop()
		}
		cancel()
	}()

	logger.Info(ctx, "Checkout backend starting", zap.String("port", cfg.Server.Port))
	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
