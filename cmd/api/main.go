package main

import (
	"log"
	"net/http"

	"nuwa-digital-twin/farm-analysis-backend/internal/analysis"
	"nuwa-digital-twin/farm-analysis-backend/internal/auth"
	"nuwa-digital-twin/farm-analysis-backend/internal/carbon"
	"nuwa-digital-twin/farm-analysis-backend/internal/config"
	"nuwa-digital-twin/farm-analysis-backend/internal/deforestation"
	"nuwa-digital-twin/farm-analysis-backend/internal/earthengine"
	"nuwa-digital-twin/farm-analysis-backend/internal/ndvi"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	logger, err := buildLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatal("failed to build logger:", err)
	}
	defer logger.Sync()

	client := earthengine.NewHTTPClient(cfg.EarthEngine.BaseURL, cfg.EarthEngine.Project, logger)
	retry := earthengine.RetryPolicy{MaxRetries: cfg.EarthEngine.MaxRetries, Logger: logger}

	service := analysis.NewService(
		ndvi.NewCalculator(client, retry, logger),
		deforestation.NewAnalyzer(client, retry, logger),
		carbon.NewEstimator(client, retry, nil, logger),
		logger,
	)

	var repo analysis.Repository
	if cfg.Database.Enabled() {
		db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		if err := analysis.Migrate(db); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		repo = analysis.NewRepository(db)
	} else {
		logger.Warn("database not configured, analyses will not be persisted")
	}

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(auth.RequireAuth(cfg.Security.JWTSecret))
	analysis.NewHandler(service, repo, logger).RegisterRoutes(v1)

	addr := cfg.Server.GetServerAddr()
	logger.Info("starting api server", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if level != "" {
		parsed, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = parsed
	}
	return cfg.Build()
}
