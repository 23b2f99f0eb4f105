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
	"github.com/ridehub/ms-booking/internal/cache"
	"github.com/ridehub/ms-booking/internal/config"
	"github.com/ridehub/ms-booking/internal/database"
	"github.com/ridehub/ms-booking/internal/events"
	"github.com/ridehub/ms-booking/internal/handlers"
	"github.com/ridehub/ms-booking/internal/middleware"
	"github.com/ridehub/ms-booking/internal/models"
	"github.com/ridehub/ms-booking/internal/services"
	"github.com/ridehub/ms-booking/pkg/jwt"
	"github.com/ridehub/ms-booking/pkg/seatlock"
	"github.com/ridehub/ms-booking/pkg/vnpay"
	"github.com/sirupsen/logrus"
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

	logger.Info("Starting RideHub booking reconciliation service")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		cancelMigrate()
		logger.Fatalf("Failed to apply schema: %v", err)
	}
	cancelMigrate()

	// Initialize redis session store
	redisClient, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	sessionStore := cache.NewSessionStore(redisClient, cfg.Redis.OpTimeout)

	// Initialize event publisher
	var publisher services.EventPublisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer := events.NewProducer(cfg.Kafka, logger)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.WithError(err).Warn("Failed to close kafka producer")
			}
		}()
		publisher = producer
		logger.WithField("brokers", cfg.Kafka.Brokers).Info("Kafka publisher enabled")
	} else {
		logger.Warn("Kafka disabled, booking lifecycle events will not be published")
	}

	// Initialize repositories
	bookingRepository := database.NewBookingRepository(db.DB)
	transactionRepository := database.NewPaymentTransactionRepository(db.DB)
	webhookLogRepository := database.NewWebhookLogRepository(db.DB, logger)
	settlementRepository := database.NewPaymentSettlementRepository(db.DB, logger)

	// Initialize clients
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ServiceTokenExpiry)
	seatLockClient := seatlock.NewClient(seatlock.Config{
		BaseURL: cfg.SeatLock.BaseURL,
		Timeout: cfg.SeatLock.Timeout,
	}, jwtService.GenerateServiceToken)
	vnpayClient := vnpay.NewClient(vnpay.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		Version:    cfg.VNPay.Version,
		QueryURL:   cfg.VNPay.QueryURL,
		Timeout:    cfg.VNPay.Timeout,
	}, logger)

	// Initialize services
	logger.Info("Initializing services...")
	expirationService := services.NewBookingExpirationService(
		bookingRepository,
		sessionStore,
		seatLockClient,
		publisher,
		logger,
	)

	webhookService := services.NewPaymentWebhookService(
		bookingRepository,
		transactionRepository,
		webhookLogRepository,
		settlementRepository,
		sessionStore,
		seatLockClient,
		publisher,
		map[models.PaymentMethod]services.SignatureVerifier{
			models.PaymentMethodVNPay: vnpayClient,
		},
		logger,
	)

	pollingService := services.NewPaymentPollingService(
		transactionRepository,
		bookingRepository,
		vnpayClient,
		webhookService,
		services.PaymentPollingConfig{
			Method:      models.PaymentMethod(cfg.Polling.Method),
			MaxAttempts: cfg.Polling.MaxAttempts,
			Lookback:    cfg.Polling.Lookback,
			Cooldown:    cfg.Polling.Cooldown,
			TrackingTTL: cfg.Polling.TrackingTTL,
			BackoffGap:  cfg.Polling.BackoffGap,
			CallerIP:    cfg.Polling.CallerIP,
		},
		logger,
	)

	// Initialize and start cron service
	cronService := services.NewCronService(expirationService, pollingService, services.CronConfig{
		ExpirationSpec:      cfg.Scheduler.ExpirationSpec,
		PollingSpec:         cfg.Scheduler.PollingSpec,
		TrackingCleanupSpec: cfg.Scheduler.TrackingCleanupSpec,
		SweepTimeout:        cfg.Scheduler.SweepTimeout,
	}, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}
	logger.Info("✓ Cron service started - booking expiration and payment polling enabled")

	// Initialize handlers
	adminSchedulerHandler := handlers.NewAdminSchedulerHandler(expirationService, pollingService, cronService, logger)
	paymentCallbackHandler := handlers.NewPaymentCallbackHandler(webhookService, logger)
	promotionHandler := handlers.NewPromotionHandler(services.NewPromotionEvaluator(), logger)

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	healthHandler := handlers.NewHealthHandler(version, map[string]handlers.Pinger{
		"database": db,
		"redis":    handlers.PingerFunc(sessionStore.Ping),
	})
	router.GET("/health", healthHandler.Health)

	api := router.Group("/api")
	{
		// Gateway notifications (signature checked by the processor)
		api.GET("/payments/vnpay/ipn", paymentCallbackHandler.VNPayIPN)

		// Promotion pricing for the booking service
		promotions := api.Group("/promotions")
		promotions.Use(middleware.AuthMiddleware(jwtService, logger))
		promotions.Use(middleware.RequireRole(jwt.RoleSystem, jwt.RoleAdmin))
		{
			promotions.POST("/evaluate", promotionHandler.Evaluate)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger))
		admin.Use(middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.POST("/cleanup", adminSchedulerHandler.TriggerCleanup)
			admin.GET("/cleanup/status", adminSchedulerHandler.CleanupStatus)
			admin.POST("/payments/:transactionId/poll", adminSchedulerHandler.PollTransaction)
			admin.GET("/scheduler/jobs", adminSchedulerHandler.SchedulerJobs)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop cron service
	logger.Info("Stopping cron service...")
	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"has_auth":   c.GetHeader("Authorization") != "",
		}
		if operator, ok := middleware.GetOperatorContext(c); ok {
			fields["operator"] = operator.Subject
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		// Query strings are not logged: IPN queries carry the gateway signature
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Debug("Request completed successfully")
		}
	}
}
