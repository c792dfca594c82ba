package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/client"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/config"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/handler"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	natsclient "github.com/aprovia-ai/be-ap-autoapprove/internal/nats"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/service"
	"github.com/aprovia-ai/be-ap-autoapprove/migrations"
)

func main() {
	// Load .env in development; deployed environments set real variables
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       os.Getenv("LOG_LEVEL"),
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting AP Auto-Approval Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if err := db.RunMigrations(migrations.FS, "."); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("Migrations applied")

	// Initialize NATS
	nc, err := natsclient.New(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          cfg.Service.Name,
		MaxReconnects: cfg.NATS.MaxReconnects,
		ReconnectWait: cfg.NATS.ReconnectWait,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()
	log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	eventRepo := repository.NewWorkflowEventRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	patternRepo := repository.NewPatternRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize messaging clients
	notifier := client.NewNotificationPublisher(nc, log.Logger)
	directory := client.NewDirectoryClient(nc, log.Logger)

	// Initialize services
	ingestService := service.NewIngestService(invoiceRepo, providerRepo, log)
	approvalService := service.NewApprovalService(
		invoiceRepo, workflowRepo, eventRepo, providerRepo, assignmentRepo,
		alertRepo, auditRepo, db, notifier, directory, cfg.Engine, log,
	)
	classificationService := service.NewClassificationService(
		providerRepo, invoiceRepo, patternRepo, cfg.Engine, log,
	)

	// Subscribe to inbound subjects
	natsHandler := handler.NewNATSHandler(ingestService, approvalService, nc, log)
	if err := natsHandler.Subscribe(); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to NATS subjects")
	}

	// Batch loop: catches invoices whose ingestion event was lost and keeps
	// provider classifications fresh
	go runBatchLoop(ctx, approvalService, classificationService, cfg.Engine, log)

	// Health endpoint
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HealthPort).Msg("Starting health endpoint")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Health endpoint failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Drain lets in-flight messages finish before the connection closes
	if err := nc.Drain(); err != nil {
		log.Error().Err(err).Msg("NATS drain failed")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Health endpoint shutdown failed")
	}

	log.Info().Msg("Server stopped")
}

// runBatchLoop drains unanalyzed invoices on the batch interval and
// reclassifies providers on the (slower) reclassification interval.
func runBatchLoop(
	ctx context.Context,
	approval *service.ApprovalService,
	classification *service.ClassificationService,
	engine config.EngineConfig,
	log *logger.Logger,
) {
	batch := time.NewTicker(engine.BatchInterval)
	defer batch.Stop()

	reclassify := time.NewTicker(engine.ReclassifyInterval)
	defer reclassify.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-batch.C:
			if _, err := approval.ProcessPending(ctx, engine.BatchLimit); err != nil {
				log.Error().Err(err).Msg("Batch processing failed")
			}
		case <-reclassify.C:
			if _, err := classification.ReclassifyProviders(ctx, engine.BatchLimit); err != nil {
				log.Error().Err(err).Msg("Provider reclassification failed")
			}
		}
	}
}
