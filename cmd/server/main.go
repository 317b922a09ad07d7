package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fieldtrack/trip-reimbursement/internal/approval"
	"github.com/fieldtrack/trip-reimbursement/internal/config"
	"github.com/fieldtrack/trip-reimbursement/internal/directory"
	httpserver "github.com/fieldtrack/trip-reimbursement/internal/interfaces/http"
	"github.com/fieldtrack/trip-reimbursement/internal/location"
	"github.com/fieldtrack/trip-reimbursement/internal/models"
	"github.com/fieldtrack/trip-reimbursement/internal/notify"
	"github.com/fieldtrack/trip-reimbursement/internal/report"
	"github.com/fieldtrack/trip-reimbursement/internal/repository"
	"github.com/fieldtrack/trip-reimbursement/internal/trip"
	"github.com/fieldtrack/trip-reimbursement/internal/worker"
	"github.com/fieldtrack/trip-reimbursement/pkg/database"
	"github.com/fieldtrack/trip-reimbursement/pkg/utils"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting trip reimbursement service",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	tripRepo := repository.NewTripRepository(db.DB, logger)
	claimRepo := repository.NewClaimRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)
	directoryRepo := repository.NewDirectoryRepository(db.DB, logger)

	// Directory with the documented default rate fallback
	defaultRate := models.RateEntry{
		GradeKey:       "DEFAULT",
		PerKmRate:      mustDecimal(cfg.Expense.DefaultPerKmRate, logger),
		DailyAllowance: mustDecimal(cfg.Expense.DefaultDailyAllowance, logger),
	}
	dir := directory.NewService(directoryRepo, defaultRate, logger)

	// Approver notifications: Lark when configured, no-op otherwise
	var notifier approval.Notifier = notify.NopNotifier{}
	if cfg.Lark.AppID != "" {
		notifier = notify.NewLarkNotifier(notify.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			Timeout:   cfg.Lark.APITimeout,
		}, logger)
		logger.Info("Lark approver notifications enabled")
	}

	// Core services
	tripService := trip.NewService(db, tripRepo, dir, dir, cfg.Tracking.MinDistanceM, logger)
	approvalEngine := approval.NewEngine(db, claimRepo, historyRepo, dir, notifier, logger)
	statements := report.NewStatementExporter(tripRepo, logger)

	// Background workers
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerManager := worker.NewManager(logger)
	workerManager.Register(worker.NewEscalationPoller(
		approvalEngine, cfg.Approval.EscalationPollInterval, logger))
	if cfg.Tracking.AgentEnabled {
		provider := location.NewSimulatedProvider(
			cfg.Tracking.AgentStartLat, cfg.Tracking.AgentStartLon)
		sampler := location.NewSampler(provider, cfg.Tracking.CoarseCeilingM, logger)
		workerManager.Register(worker.NewTrackingAgent(
			sampler, tripService, cfg.Tracking.AgentEmployeeID,
			cfg.Tracking.SampleInterval, cfg.Tracking.AcquisitionLimit, logger))
		logger.Info("Simulated tracking agent enabled",
			zap.String("employee_id", cfg.Tracking.AgentEmployeeID))
	}
	if err := workerManager.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workerManager.StopAll()

	// HTTP server runs until the signal context cancels it
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, tripService, approvalEngine, statements, dir,
		mustDecimal(cfg.Expense.FuelPricePerLitre, logger), logger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited")
}

func mustDecimal(s string, logger *zap.Logger) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Fatal("Invalid decimal in configuration", zap.String("value", s), zap.Error(err))
	}
	return d
}
