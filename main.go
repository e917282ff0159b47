package main

import (
	"context"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/sagacraft/saga-engine/pkg/auth"
	"github.com/sagacraft/saga-engine/pkg/config"
	"github.com/sagacraft/saga-engine/pkg/database"
	"github.com/sagacraft/saga-engine/pkg/evidence"
	"github.com/sagacraft/saga-engine/pkg/handlers"
	"github.com/sagacraft/saga-engine/pkg/logging"
	"github.com/sagacraft/saga-engine/pkg/repositories"
	"github.com/sagacraft/saga-engine/pkg/services"
	"github.com/sagacraft/saga-engine/pkg/workerpool"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("provider", cfg.Provider.Kind))

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run through database/sql on the same pool (golang-migrate
	// requires it).
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	provider, err := evidence.NewProvider(evidence.FactoryConfig{
		Kind:           evidence.ProviderKind(cfg.Provider.Kind),
		Endpoint:       cfg.Provider.Endpoint,
		Model:          cfg.Provider.Model,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		APIKey:         cfg.Provider.APIKey,
		Timeout:        cfg.Provider.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("failed to create evidence provider", zap.Error(err))
	}

	suggestionRepo := repositories.NewSuggestionRepository(db)
	entityRepo := repositories.NewEntityRepository(db)

	extraction := services.NewFeatureExtractionService(entityRepo, suggestionRepo, provider, logger)
	prediction := services.NewRelationshipPredictionService(extraction, suggestionRepo, logger)
	suggestionService := services.NewSuggestionService(suggestionRepo, entityRepo, logger)

	pool := workerpool.New(workerpool.Config{MaxConcurrent: cfg.Engine.MaxConcurrent}, logger)
	processor := services.NewBackgroundProcessor(services.ProcessorConfig{
		MaxPairsPerBatch:       cfg.Engine.MaxPairsPerBatch,
		StalePendingAfter:      cfg.Engine.StalePendingAfter(),
		CallsPerMinute:         cfg.Engine.CallsPerMinute,
		RecalibrationThreshold: cfg.Engine.RecalibrationThreshold,
	}, suggestionRepo, prediction, suggestionService, pool, logger)

	authMiddleware := auth.NewMiddleware(cfg.Auth.SigningSecret, cfg.Auth.EnableVerification, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	suggestionHandler := handlers.NewSuggestionHandler(suggestionService, processor, logger)
	suggestionHandler.RegisterRoutes(mux, authMiddleware)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting saga-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
