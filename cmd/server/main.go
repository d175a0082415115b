package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-sentry/internal/clients/advisor"
	"github.com/aristath/portfolio-sentry/internal/clients/yahoo"
	"github.com/aristath/portfolio-sentry/internal/config"
	"github.com/aristath/portfolio-sentry/internal/database"
	"github.com/aristath/portfolio-sentry/internal/events"
	"github.com/aristath/portfolio-sentry/internal/modules/alerts"
	"github.com/aristath/portfolio-sentry/internal/modules/debate"
	"github.com/aristath/portfolio-sentry/internal/modules/marketdata"
	"github.com/aristath/portfolio-sentry/internal/modules/monitor"
	"github.com/aristath/portfolio-sentry/internal/modules/positions"
	"github.com/aristath/portfolio-sentry/internal/modules/rebalancer"
	"github.com/aristath/portfolio-sentry/internal/modules/snapshots"
	"github.com/aristath/portfolio-sentry/internal/notify"
	"github.com/aristath/portfolio-sentry/internal/scheduler"
	"github.com/aristath/portfolio-sentry/internal/server"
	"github.com/aristath/portfolio-sentry/pkg/logger"
)

const snapshotRetention = 2000

func main() {
	// Load configuration first so the log level is honored from the start
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Portfolio Sentry")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	eventManager := events.NewManager(log)

	// Repositories
	positionRepo := positions.NewRepository(db, log)
	alertRepo := alerts.NewRepository(db, log)
	snapshotRepo := snapshots.NewRepository(db, log)
	auditRepo := rebalancer.NewAuditRepository(db, log)

	// Clients
	oracle := yahoo.NewClient(cfg.QuoteTimeout, cfg.MaxQuoteAge, log)
	advisorClient := advisor.NewClient(cfg.AdvisorServiceURL, cfg.AdvisorTimeout, log)
	notifier := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, log)
	if notifier == nil {
		log.Info().Msg("Telegram notifications disabled")
	}

	// Core services
	synthesizer := debate.NewSynthesizer(advisorClient, cfg.AdvisorTimeout, log)
	market := marketdata.NewService(oracle, log)

	executor := rebalancer.NewStoreExecutor(db, log)
	var reb *rebalancer.Rebalancer
	if notifier != nil {
		reb = rebalancer.New(cfg.Rebalancer, positionRepo, auditRepo, executor, eventManager, notifier, log)
	} else {
		reb = rebalancer.New(cfg.Rebalancer, positionRepo, auditRepo, executor, eventManager, nil, log)
	}

	monitorService := monitor.NewService(
		monitor.Config{
			Interval:          cfg.MonitorInterval,
			QuoteTimeout:      cfg.QuoteTimeout,
			SuppressionWindow: cfg.SuppressionWindow,
			IdleCashPct:       cfg.IdleCashPct,
			IdleCashDwell:     cfg.IdleCashDwell,
		},
		positionRepo, oracle, alertRepo, snapshotRepo,
		synthesizer, market, reb, eventManager, log,
	)

	// Stream hub receives alerts and snapshots from every monitor
	hub := server.NewHub(log)
	monitorService.SetStreamHandlers(hub.BroadcastAlert, hub.BroadcastSnapshot)

	// Background maintenance jobs
	sched := scheduler.New(log)
	if err := registerJobs(sched, db, cfg, reb, snapshotRepo, auditRepo, eventManager, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Resume monitoring for every active account
	accountIDs, err := positionRepo.ListAccounts()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list accounts, starting with none monitored")
	}
	for _, accountID := range accountIDs {
		if err := monitorService.StartMonitor(accountID, 0); err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("Failed to start monitor")
		}
	}
	defer monitorService.StopAll()

	// HTTP server
	srv := server.New(server.Config{
		Port:       cfg.Port,
		Log:        log,
		Cfg:        cfg,
		Monitor:    monitorService,
		Rebalancer: reb,
		Audit:      auditRepo,
		Hub:        hub,
		DevMode:    cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().
		Int("port", cfg.Port).
		Int("accounts", len(accountIDs)).
		Str("mode", string(reb.DefaultMode())).
		Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	db *database.DB,
	cfg *config.Config,
	reb *rebalancer.Rebalancer,
	snapshotRepo *snapshots.Repository,
	auditRepo *rebalancer.AuditRepository,
	eventManager *events.Manager,
	log zerolog.Logger,
) error {
	// Midnight: reset daily trade counters, prune old snapshots
	resetJob := scheduler.NewDailyResetJob(reb, snapshotRepo, snapshotRetention, log)
	if err := sched.AddJob("0 0 0 * * *", resetJob); err != nil {
		return err
	}

	// Every 6 hours: database integrity check and WAL checkpoint
	integrityJob := scheduler.NewIntegrityJob(db, log)
	if err := sched.AddJob("@every 6h", integrityJob); err != nil {
		return err
	}

	// Nightly off-site audit backup, only when a bucket is configured
	if cfg.AuditBackupBucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return err
		}
		s3Client := s3.NewFromConfig(awsCfg)
		backupJob := scheduler.NewAuditBackupJob(
			auditRepo, s3Client, cfg.AuditBackupBucket, cfg.AuditBackupPrefix, eventManager, log)
		if err := sched.AddJob("0 30 0 * * *", backupJob); err != nil {
			return err
		}
	} else {
		log.Info().Msg("Audit backup disabled, no bucket configured")
	}

	return nil
}
