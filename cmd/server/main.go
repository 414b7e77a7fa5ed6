package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/student-booking-engine/internal/cache"
	"github.com/smarttransit/student-booking-engine/internal/config"
	"github.com/smarttransit/student-booking-engine/internal/database"
	"github.com/smarttransit/student-booking-engine/internal/handlers"
	"github.com/smarttransit/student-booking-engine/internal/middleware"
	"github.com/smarttransit/student-booking-engine/internal/services"
	"github.com/smarttransit/student-booking-engine/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting SmartTransit Student Booking Engine")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	logger.WithField("driver", cfg.Database.Driver).Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")


	// Optional Redis status cache
	var (
		statusCache *cache.StatusCacheStore
		statusStore handlers.StatusStore
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		statusCache = cache.NewStatusCacheStore(redisClient, cfg.Redis.StatusCacheTTL)
		statusStore = statusCache
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis status cache enabled")
	} else {
		logger.Info("REDIS_ADDR not set, relying on client-supplied status caches")
	}

	// Services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer)

	engine, ledger, err := newBookingEngine(cfg.Booking, db.DB)
	if err != nil {
		logger.Fatalf("Failed to initialize booking engine: %v", err)
	}

	rateLimitService := services.NewRateLimitService(services.RateLimitConfig{
		CommitsPerMinute: cfg.RateLimit.CommitsPerMinute,
		Burst:            cfg.RateLimit.Burst,
	})

	var auditService *services.LedgerAuditService
	if cfg.Jobs.LedgerAuditEnabled {
		auditService = services.NewLedgerAuditService(ledger, logger)
	}

	auditLogService := services.NewAuditService(db.DB)

	cronService := services.NewCronService(auditService, rateLimitService, cfg.Jobs.LedgerAuditCron, logger)
	cronService.EnableAuditLogCleanup(auditLogService, cfg.Jobs.AuditLogRetention)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron jobs: %v", err)
	}
	defer cronService.Stop()
	logger.WithField("job_count", cronService.GetJobStatus()["job_count"]).Info("Cron jobs scheduled")

	if err := handlers.RegisterValidators(); err != nil {
		logger.Fatalf("Failed to register request validators: %v", err)
	}

	bookingHandler := handlers.NewBookingHandler(engine, statusStore, cfg.Booking, logger)
	bookingHandler.SetAuditor(auditLogService)

	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.AddCheck("database", db.PingContext)
	if statusCache != nil {
		healthHandler.AddCheck("redis", statusCache.Ping)
	}

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(jwtService))
	v1.Use(middleware.RequireRole("student"))
	bookingHandler.RegisterRoutes(v1, middleware.CommitRateLimiter(rateLimitService))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server listening on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// newBookingEngine wires the engine over the Postgres repositories and returns
// the ledger for the audit jobs
func newBookingEngine(cfg config.BookingConfig, db *sqlx.DB) (*services.BookingEngine, *database.BookingLedger, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid booking timezone %q: %w", cfg.Timezone, err)
	}

	ledger := database.NewBookingLedger(db)
	engine := services.NewBookingEngine(
		database.NewScheduleRepository(db),
		database.NewAllocationRepository(db),
		ledger,
		loc,
	)
	return engine, ledger, nil
}
