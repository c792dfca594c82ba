package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aprovia-ai/be-ap-autoapprove/internal/client"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/config"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/database"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/logger"
	natsclient "github.com/aprovia-ai/be-ap-autoapprove/internal/nats"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/repository"
	"github.com/aprovia-ai/be-ap-autoapprove/internal/service"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "apctl",
	Short: "Operator CLI for the AP auto-approval service",
	Long: `apctl drives the invoice auto-approval service from the command line:
reprocess invoices, inspect pending reviews, reclassify providers and read
approval timelines.

Commands connect directly to the service database and use the same
environment variables as the server. NATS is optional; without it, decision
notifications are skipped.`,
	Version: version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runtime wires the shared dependencies for one command invocation.
type runtime struct {
	cfg            *config.Config
	log            *logger.Logger
	db             *database.DB
	nats           *natsclient.Client
	approval       *service.ApprovalService
	classification *service.ClassificationService
}

// newRuntime connects to the database (required) and NATS (optional) and
// builds the services. Callers must close() the runtime when done.
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	// Quiet by default so command output stays readable
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	log := logger.New(logger.Config{
		Level:       level,
		Environment: cfg.Service.Environment,
		ServiceName: "apctl",
		Version:     version,
	})

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
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	nc, err := natsclient.New(natsclient.Config{
		URL:           cfg.NATS.URL,
		Name:          "apctl",
		MaxReconnects: 0, // fail fast; the CLI has no reason to retry
		ReconnectWait: cfg.NATS.ReconnectWait,
	})
	if err != nil {
		log.Warn().Err(err).Msg("NATS unavailable; notifications disabled")
		nc = nil
	}

	invoiceRepo := repository.NewInvoiceRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	eventRepo := repository.NewWorkflowEventRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	patternRepo := repository.NewPatternRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	notifier := client.NewNotificationPublisher(nc, log.Logger)
	directory := client.NewDirectoryClient(nc, log.Logger)

	return &runtime{
		cfg:  cfg,
		log:  log,
		db:   db,
		nats: nc,
		approval: service.NewApprovalService(
			invoiceRepo, workflowRepo, eventRepo, providerRepo, assignmentRepo,
			alertRepo, auditRepo, db, notifier, directory, cfg.Engine, log,
		),
		classification: service.NewClassificationService(
			providerRepo, invoiceRepo, patternRepo, cfg.Engine, log,
		),
	}, nil
}

func (r *runtime) close() {
	if r.nats != nil {
		r.nats.Close()
	}
	r.db.Close()
}
