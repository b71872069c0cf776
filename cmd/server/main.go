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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/staybook/hotel-booking-backend/internal/broker"
	"github.com/staybook/hotel-booking-backend/internal/cache"
	"github.com/staybook/hotel-booking-backend/internal/config"
	"github.com/staybook/hotel-booking-backend/internal/database"
	"github.com/staybook/hotel-booking-backend/internal/handlers"
	"github.com/staybook/hotel-booking-backend/internal/middleware"
	"github.com/staybook/hotel-booking-backend/internal/services"
	"github.com/staybook/hotel-booking-backend/pkg/jwt"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

// keyStore backs idempotency keys and the sweeper lock
type keyStore interface {
	services.IdempotencyStore
	services.Locker
}

// eventBus publishes booking events until closed
type eventBus interface {
	services.EventPublisher
	Close() error
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting StayBook hotel booking backend")
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Database
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Redis is optional: without it idempotency keys are not remembered and
	// every instance may sweep
	var keys keyStore = cache.NoopStore{}
	var redisClient *cache.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.IdempotencyTTL)
		if err != nil {
			logger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		keys = redisClient
		logger.WithField("addr", cfg.Redis.Addr).Info("Redis connection established")
	} else {
		logger.Warn("REDIS_ADDR not set - Idempotency-Key replay disabled")
	}

	// Kafka is optional
	var events eventBus = broker.NoopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		events = broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.BookingTopic, logger)
		logger.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.BookingTopic,
		}).Info("Booking events will be published to Kafka")
	}
	defer events.Close()

	// Repositories
	bookingRepository := database.NewBookingRepository(db)
	hotelRepository := database.NewHotelRepository(db)
	paymentAuditRepository := database.NewPaymentAuditRepository(db, logger)

	// Services
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	stripeService := services.NewStripeService(cfg.Stripe, logger)
	if stripeService.IsConfigured() {
		logger.WithField("mode", stripeService.Mode()).Info("✓ Stripe checkout enabled")
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set - bookings will be created without checkout sessions")
	}
	if !stripeService.WebhookConfigured() {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set - webhook deliveries will be answered with 500")
	}

	bookingService := services.NewBookingService(
		bookingRepository,
		hotelRepository,
		stripeService,
		paymentAuditRepository,
		events,
		keys,
		logger,
	)
	reconciler := services.NewWebhookReconciler(bookingRepository, paymentAuditRepository, events, logger)

	sweeper := services.NewReconcileSweeper(bookingRepository, stripeService, reconciler, keys, cfg.Reconcile, logger)
	if cfg.Reconcile.Enabled {
		if err := sweeper.Start(); err != nil {
			logger.Fatalf("Failed to start reconcile sweeper: %v", err)
		}
		logger.WithField("schedule", cfg.Reconcile.Schedule).Info("✓ Reconcile sweeper started")
	}

	// Handlers
	exposeErrors := cfg.IsDevelopment()
	bookingHandler := handlers.NewBookingHandler(bookingService, logger, exposeErrors)
	paymentHandler := handlers.NewPaymentHandler(stripeService, reconciler, paymentAuditRepository, stripeService, logger, exposeErrors)
	adminHandler := handlers.NewAdminHandler(paymentAuditRepository, sweeper, logger, exposeErrors)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db, redisClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authRequired := middleware.AuthMiddleware(jwtService, logger)
	adminRequired := middleware.RequireAdmin(jwtService, cfg.Admin.APIKeyHash, logger)

	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		{
			bookings.POST("", authRequired, bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/me", authRequired, bookingHandler.GetMyBookings)
			bookings.GET("/session/:sessionId", bookingHandler.GetBookingBySession)
			bookings.GET("/:bookingId", authRequired, bookingHandler.GetBooking)
			bookings.PATCH("/:bookingId", authRequired, bookingHandler.UpdateBooking)
			bookings.PATCH("/:bookingId/cancel", authRequired, bookingHandler.CancelBooking)
			bookings.POST("/:bookingId/checkout", authRequired, bookingHandler.RetryCheckout)

			bookings.PATCH("/:bookingId/confirm", adminRequired, bookingHandler.ConfirmBooking)
			bookings.PATCH("/:bookingId/status", adminRequired, bookingHandler.SetBookingStatus)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("/webhook", paymentHandler.HandleWebhook)
			payments.GET("/diagnostics", adminRequired, paymentHandler.GetDiagnostics)
		}

		admin := v1.Group("/admin")
		admin.Use(adminRequired)
		{
			admin.GET("/bookings/:bookingId/payment-audits", adminHandler.GetPaymentAudits)
			admin.POST("/reconcile/run", adminHandler.RunReconcile)
			admin.GET("/reconcile/status", adminHandler.GetReconcileStatus)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler reports database and Redis reachability
func healthCheckHandler(db database.Pinger, redisClient *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		}

		if err := db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
		}

		if redisClient != nil {
			body["redis"] = "healthy"
			if err := redisClient.Ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body["status"] = "unhealthy"
				body["redis"] = "unhealthy"
			}
		}

		c.JSON(status, body)
	}
}
