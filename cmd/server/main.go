package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pipe-qc-server/internal/api"
	"github.com/pipe-qc-server/internal/cache"
	"github.com/pipe-qc-server/internal/config"
	"github.com/pipe-qc-server/internal/database"
	"github.com/pipe-qc-server/internal/domain"
	"github.com/pipe-qc-server/internal/logging"
	"github.com/pipe-qc-server/internal/overrides"
	"github.com/pipe-qc-server/internal/repository"
	"github.com/pipe-qc-server/internal/rules"
	"github.com/pipe-qc-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Starting pipe QC server")

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	runner, err := database.NewMigrationRunner(configManager.GetMigrationDatabaseURL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create migration runner")
	}
	if err := runner.Up(); err != nil {
		logger.WithError(err).Fatal("Failed to apply migrations")
	}
	runner.Close()

	// Rule tables
	ruleCache, err := rules.NewCache()
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rule cache")
	}
	chemicalStore := rules.NewStore(domain.ChemicalTable, cfg.Rules.ChemicalPath, ruleCache, logger)
	mechanicalStore := rules.NewStore(domain.MechanicalTable, cfg.Rules.MechanicalPath, ruleCache, logger)

	// Decision services
	chemicalSvc := service.NewChemicalDecisionService(chemicalStore, logger)
	mechanicalSvc := service.NewMechanicalDecisionService(mechanicalStore, logger)

	// Override log
	overrideStore, err := overrides.NewSQLiteStore(cfg.Overrides.DBPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open override store")
	}
	defer overrideStore.Close()

	// Optional decision cache
	var decisionCache *cache.DecisionCache
	if cfg.Cache.Enabled {
		decisionCache, err = cache.NewDecisionCache(cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Warn("Decision cache unavailable, continuing without it")
		} else {
			defer decisionCache.Close()
		}
	}

	server := api.NewServer(api.Deps{
		Config:          cfg,
		Logger:          logger,
		DB:              db,
		ChemicalRepo:    repository.NewChemicalRepository(db.Pool, logger),
		MechanicalRepo:  repository.NewMechanicalRepository(db.Pool, logger),
		SpecRepo:        repository.NewSpecRepository(db.Pool, logger),
		ChemicalStore:   chemicalStore,
		MechanicalStore: mechanicalStore,
		ChemicalSvc:     chemicalSvc,
		MechanicalSvc:   mechanicalSvc,
		OverrideStore:   overrideStore,
		DecisionCache:   decisionCache,
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}
