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
	"github.com/lautnusa/speedboat-backend/internal/config"
	"github.com/lautnusa/speedboat-backend/internal/database"
	"github.com/lautnusa/speedboat-backend/internal/handlers"
	"github.com/lautnusa/speedboat-backend/internal/middleware"
	"github.com/lautnusa/speedboat-backend/internal/services"
	"github.com/lautnusa/speedboat-backend/pkg/authz"
	"github.com/lautnusa/speedboat-backend/pkg/events"
	"github.com/lautnusa/speedboat-backend/pkg/jwt"
	"github.com/lautnusa/speedboat-backend/pkg/mailer"
	"github.com/lautnusa/speedboat-backend/pkg/midtrans"
	"github.com/lautnusa/speedboat-backend/pkg/validator"
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

	logger.Info("Starting SpeedBoat Ticketing Backend")
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
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	if err := validator.RegisterGinValidations(); err != nil {
		logger.Fatalf("Failed to register request validations: %v", err)
	}

	loc := cfg.Location()

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	ctx := context.Background()

	// Infrastructure
	authorizer, err := authz.New(ctx)
	if err != nil {
		logger.Fatalf("Failed to load authorization policy: %v", err)
	}

	var publisher events.Publisher
	if cfg.AMQP.URL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to message broker: %v", err)
		}
		publisher = amqpPublisher
		logger.WithField("exchange", cfg.AMQP.Exchange).Info("Publishing domain events to AMQP")
	} else {
		publisher = events.NewLogPublisher(logger)
		logger.Info("AMQP_URL not set, domain events are only logged")
	}
	defer publisher.Close()

	var mail mailer.Mailer
	if cfg.Mail.Mode == "smtp" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, logger)
		logger.WithField("host", cfg.Mail.Host).Info("Sending mail over SMTP")
	} else {
		mail = mailer.NewLogMailer(logger)
		logger.Info("Mail in log mode (no email will be sent)")
	}

	// A nil Counter disables rate limiting
	var counter services.Counter
	if cfg.Redis.URL != "" {
		redisCounter, err := services.NewRedisCounter(cfg.Redis.URL)
		if err != nil {
			logger.Fatalf("Failed to configure Redis: %v", err)
		}
		if err := redisCounter.Ping(ctx); err != nil {
			logger.WithError(err).Warn("Redis not reachable yet, rate limiting fails open until it is")
		}
		defer redisCounter.Close()
		counter = redisCounter
	} else {
		logger.Warn("REDIS_URL not set, rate limiting disabled")
	}

	gateway := midtrans.NewClient(midtrans.Config{
		Environment: cfg.Midtrans.Environment,
		ServerKey:   cfg.Midtrans.ServerKey,
		FinishURL:   cfg.Midtrans.FinishURL,
	}, logger)
	if !gateway.IsConfigured() {
		logger.Warn("MIDTRANS_SERVER_KEY not set, payments are disabled")
	}

	// Repositories
	userRepository := database.NewUserRepository(db)
	authTokenRepository := database.NewAuthTokenRepository(db)
	refreshTokenRepository := database.NewRefreshTokenRepository(db)
	portRepository := database.NewPortRepository(db)
	shipRepository := database.NewShipRepository(db)
	routeRepository := database.NewRouteRepository(db)
	scheduleRepository := database.NewScheduleRepository(db)
	bookingRepository := database.NewBookingRepository(db)
	paymentRepository := database.NewPaymentRepository(db)
	paymentAuditRepository := database.NewPaymentAuditRepository(db, logger)
	ticketRepository := database.NewTicketRepository(db)

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	auditService := services.NewAuditService(db, logger)
	rateLimitService := services.NewRateLimitService(counter, cfg.RateLimit, logger)
	notificationService := services.NewNotificationService(mail, cfg.Auth.FrontendURL, loc, logger)
	documentService := services.NewDocumentService(loc)
	ticketService := services.NewTicketService(cfg.Booking.QRSecret)

	authService := services.NewAuthService(
		userRepository,
		authTokenRepository,
		refreshTokenRepository,
		jwtService,
		notificationService,
		rateLimitService,
		auditService,
		cfg.Auth,
		cfg.Security.BcryptCost,
		logger,
	)
	oauthService := services.NewOAuthService(cfg.OAuth, userRepository, authService, auditService, logger)

	bookingService := services.NewBookingService(
		bookingRepository,
		scheduleRepository,
		paymentRepository,
		ticketRepository,
		gateway,
		authorizer,
		publisher,
		notificationService,
		documentService,
		cfg.Booking,
		logger,
	)
	paymentService := services.NewPaymentService(
		bookingRepository,
		paymentRepository,
		paymentAuditRepository,
		bookingService,
		ticketService,
		documentService,
		notificationService,
		gateway,
		publisher,
		cfg.Midtrans.ClientKey,
		logger,
	)
	catalogService := services.NewCatalogService(
		portRepository,
		shipRepository,
		routeRepository,
		scheduleRepository,
		bookingRepository,
		userRepository,
		bookingService,
		auditService,
		loc,
		logger,
	)
	operatorService := services.NewOperatorService(
		scheduleRepository,
		ticketRepository,
		ticketService,
		documentService,
		publisher,
		cfg.Booking,
		logger,
	)

	// Background jobs
	expirationService := services.NewBookingExpirationService(
		bookingRepository,
		paymentRepository,
		bookingService,
		paymentService,
		logger,
	)
	expirationService.Start()

	cronService := services.NewCronService(
		paymentService,
		authTokenRepository,
		refreshTokenRepository,
		scheduleRepository,
		auditService,
		loc,
		logger,
	)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	logger.Info("Services initialized")

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService, oauthService, jwtService, cfg.Auth, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogService, loc, logger)
	adminHandler := handlers.NewAdminHandler(catalogService, logger)
	bookingHandler := handlers.NewBookingHandler(bookingService, logger)
	paymentHandler := handlers.NewPaymentHandler(paymentService, logger)
	operatorHandler := handlers.NewOperatorHandler(operatorService, logger)
	jobsHandler := handlers.NewJobsHandler(cronService, expirationService, logger)

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
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db, gateway))

	authMiddleware := middleware.AuthMiddleware(jwtService)
	var verified gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if cfg.Auth.RequireEmailVerification {
		verified = middleware.RequireVerifiedEmail(userRepository, logger)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/verify-email", authHandler.VerifyEmail)
			auth.POST("/resend-verification", authHandler.ResendVerification)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
			auth.GET("/oauth/google", authHandler.GoogleStart)
			auth.GET("/oauth/google/callback", authHandler.GoogleCallback)
			auth.GET("/me", authMiddleware, authHandler.Me)
		}

		// Public catalog
		v1.GET("/ports", catalogHandler.ListPorts)
		v1.GET("/schedules/search", catalogHandler.SearchSchedules)
		v1.GET("/schedules/:id", catalogHandler.GetSchedule)

		bookings := v1.Group("/bookings", authMiddleware)
		{
			bookings.POST("", verified, bookingHandler.CreateBooking)
			bookings.GET("", bookingHandler.ListBookings)
			bookings.GET("/:code", bookingHandler.GetBooking)
			bookings.POST("/:code/cancel", bookingHandler.CancelBooking)
			bookings.GET("/:code/tickets", bookingHandler.ListTickets)
			bookings.GET("/:code/eticket.pdf", bookingHandler.DownloadETicket)
		}
		v1.GET("/tickets/:code/qr.png", authMiddleware, bookingHandler.TicketQR)

		payments := v1.Group("/payments")
		{
			// Called by the gateway; authenticated by the notification signature
			payments.POST("/notification", paymentHandler.Notification)
			payments.POST("/create", authMiddleware, verified, paymentHandler.CreatePayment)
			payments.GET("/status/:bookingCode", authMiddleware, paymentHandler.GetPaymentStatus)
		}

		operator := v1.Group("/operator", authMiddleware)
		{
			operator.GET("/schedules/:id/manifest",
				middleware.RequirePermission(authorizer, authz.PermManifestRead, logger), operatorHandler.GetManifest)
			operator.GET("/schedules/:id/manifest.pdf",
				middleware.RequirePermission(authorizer, authz.PermManifestRead, logger), operatorHandler.DownloadManifest)
			operator.POST("/tickets/validate",
				middleware.RequirePermission(authorizer, authz.PermTicketsValidate, logger), operatorHandler.ValidateTicket)
			operator.POST("/tickets/check-in",
				middleware.RequirePermission(authorizer, authz.PermTicketsCheckIn, logger), operatorHandler.CheckIn)
		}

		admin := v1.Group("/admin", authMiddleware, middleware.RequirePermission(authorizer, authz.PermCatalogManage, logger))
		{
			admin.POST("/ports", adminHandler.CreatePort)
			admin.GET("/ports", adminHandler.ListPorts)
			admin.GET("/ports/:id", adminHandler.GetPort)
			admin.PUT("/ports/:id", adminHandler.UpdatePort)
			admin.DELETE("/ports/:id", adminHandler.DeletePort)

			admin.POST("/ships", adminHandler.CreateShip)
			admin.GET("/ships", adminHandler.ListShips)
			admin.GET("/ships/:id", adminHandler.GetShip)
			admin.PUT("/ships/:id", adminHandler.UpdateShip)
			admin.DELETE("/ships/:id", adminHandler.DeleteShip)

			admin.POST("/routes", adminHandler.CreateRoute)
			admin.GET("/routes", adminHandler.ListRoutes)
			admin.GET("/routes/:id", adminHandler.GetRoute)
			admin.PUT("/routes/:id", adminHandler.UpdateRoute)
			admin.DELETE("/routes/:id", adminHandler.DeleteRoute)

			admin.POST("/schedules", adminHandler.CreateSchedule)
			admin.GET("/schedules", adminHandler.ListSchedules)
			admin.GET("/schedules/:id", adminHandler.GetSchedule)
			admin.PUT("/schedules/:id", adminHandler.UpdateSchedule)
			admin.POST("/schedules/:id/cancel", adminHandler.CancelSchedule)
			admin.DELETE("/schedules/:id", adminHandler.DeleteSchedule)

			users := admin.Group("/users", middleware.RequirePermission(authorizer, authz.PermUsersManage, logger))
			users.GET("", adminHandler.ListUsers)
			users.PUT("/:id/role", adminHandler.ChangeUserRole)

			jobs := admin.Group("/jobs", middleware.RequirePermission(authorizer, authz.PermUsersManage, logger))
			jobs.GET("", jobsHandler.Status)
			jobs.POST("/run", jobsHandler.RunNow)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
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

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	expirationService.Stop()
	cronService.Stop()

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
			"query":      c.Request.URL.RawQuery,
			"ip":         c.ClientIP(),
			"latency_ms": time.Since(start).Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		// Add user context if available
		if userCtx, ok := middleware.GetUserContext(c); ok {
			fields["user_id"] = userCtx.UserID
			fields["role"] = userCtx.Role
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		// Log based on status code
		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		case path == "/health":
			entry.Debug("Health check")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB, gateway *midtrans.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		// Check database connection
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":          "healthy",
			"database":        "healthy",
			"payment_gateway": gateway.IsConfigured(),
			"version":         version,
			"timestamp":       time.Now().Unix(),
		})
	}
}
