package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"tixgate/api/routes"
	"tixgate/internal/capacity"
	"tixgate/internal/shared/config"
	"tixgate/internal/shared/database"
	"tixgate/internal/transitions"
	"tixgate/pkg/logger"
	"tixgate/pkg/ratelimit"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()

	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect:", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db.GetPostgreSQL()); err != nil {
		appLogger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	// Rate limiter; a disabled limiter passes everything through but
	// keeps the payout confirmation throttle wiring in one place
	rateLimiterConfig := &ratelimit.Config{
		Enabled:         cfg.RateLimit.Enabled,
		WindowDuration:  cfg.RateLimit.WindowDuration,
		DefaultRequests: cfg.RateLimit.DefaultRequests,
		PublicRequests:  cfg.RateLimit.PublicRequests,
		BookingRequests: cfg.RateLimit.BookingRequests,
		AdminRequests:   cfg.RateLimit.AdminRequests,
		ScanRequests:    cfg.RateLimit.ScanRequests,
		ConfirmAttempts: cfg.RateLimit.ConfirmAttempts,
		WhitelistedIPs:  cfg.RateLimit.WhitelistedIPs,
	}

	rateLimiter := ratelimit.NewRateLimiter(db.GetRedisClient(), rateLimiterConfig)
	if cfg.RateLimit.Enabled {
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Transition publisher: Kafka when configured, dropped otherwise
	var producer transitions.Producer
	if cfg.Kafka.Enabled {
		producerConfig := transitions.DefaultKafkaProducerConfig()
		producerConfig.Brokers = cfg.Kafka.Brokers
		producerConfig.Topic = cfg.Kafka.Topic

		producer, err = transitions.NewKafkaProducer(producerConfig, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize Kafka producer", slog.Any("error", err))
			appLogger.Info("Continuing without transition publishing")
			producer = transitions.NewNopProducer()
		} else {
			appLogger.Info("Kafka transition producer initialized",
				slog.String("topic", cfg.Kafka.Topic))
		}
	} else {
		producer = transitions.NewNopProducer()
		appLogger.Info("Transition publishing disabled")
	}
	defer producer.Close()

	router, appRouter := setupRouter(cfg, db, rateLimiter, producer)

	// Background sweep reclaims expired holds
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	sweeper := capacity.NewSweeper(appRouter.CapacityService(), cfg.Capacity.SweepInterval, cfg.Capacity.SweepBatch, appLogger)
	go sweeper.Start(sweepCtx)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("🚀 Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
			slog.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	sweepCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, rateLimiter *ratelimit.RateLimiter, producer transitions.Producer) (*gin.Engine, *routes.Router) {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Global rate limiting middleware (applied to all routes)
	if cfg.RateLimit.Enabled {
		engine.Use(ratelimit.Middleware(rateLimiter))
		appLogger.Info("Rate limiting middleware applied to all routes")
	}

	appRouter := routes.NewRouter(cfg, db, rateLimiter, producer, appLogger)
	appRouter.SetupRoutes(engine)

	return engine, appRouter
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
