package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptosim/internal/config"
	"cryptosim/internal/database"
	"cryptosim/internal/handlers"
	"cryptosim/internal/logger"
	"cryptosim/internal/market"
	"cryptosim/internal/metrics"
	"cryptosim/internal/middleware"
	"cryptosim/internal/services"
	"cryptosim/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	validator.Register()

	// Initialize database configuration
	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	// Create database manager
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	startingBalance, err := decimal.NewFromString(appConfig.StartingBalance)
	if err != nil {
		return fmt.Errorf("invalid STARTING_BALANCE: %w", err)
	}

	// Market data gateway
	provider := market.NewCoinGeckoProvider(appConfig.MarketDataBaseURL, &http.Client{Timeout: appConfig.FetchTimeout})
	gateway := market.NewGateway(provider, market.Config{
		FreshTTL:           appConfig.CacheFreshTTL,
		StaleTTL:           appConfig.CacheStaleTTL,
		RateLimitPerMinute: appConfig.RateLimitPerMinute,
		FetchTimeout:       appConfig.FetchTimeout,
	})

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	ledgerService := services.NewLedgerService(db, startingBalance)
	tradeService := services.NewTradeService(db, ledgerService)
	leaderboardService := services.NewLeaderboardService(db, ledgerService)
	collectionService := services.NewCollectionService(db, ledgerService)

	reconciler := services.NewReconciler(db, ledgerService, leaderboardService, gateway, services.ReconcilerConfig{
		Interval:             appConfig.SyncInterval,
		MaxConcurrentUpdates: appConfig.MaxConcurrentUpdates,
		RetryAttempts:        appConfig.RetryAttempts,
		RetryDelay:           appConfig.RetryDelay,
		LeaderboardCooldown:  appConfig.LeaderboardCooldown,
	})
	reconciler.Start()

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	tradeHandler := handlers.NewTradeHandler(tradeService)
	portfolioHandler := handlers.NewPortfolioHandler(ledgerService)
	marketHandler := handlers.NewMarketHandler(gateway)
	collectionHandler := handlers.NewCollectionHandler(collectionService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)
	adminHandler := handlers.NewAdminHandler(reconciler)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check and metrics
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)
	protected.POST("/auth/logout", authHandler.Logout)

	// Trading
	protected.POST("/trades", tradeHandler.Execute)
	protected.GET("/transactions", tradeHandler.List)
	protected.GET("/transactions/:id", tradeHandler.Get)

	// Portfolio
	protected.GET("/portfolio", portfolioHandler.Get)
	protected.POST("/portfolio/reset", portfolioHandler.Reset)

	// Market data
	protected.GET("/market/prices", marketHandler.GetPrices)
	protected.GET("/market/history/:symbol", marketHandler.GetHistory)

	// Collections
	collections := protected.Group("/collections")
	collections.POST("", collectionHandler.Create)
	collections.GET("", collectionHandler.List)
	collections.POST("/join", collectionHandler.Join)
	collections.GET("/:id", collectionHandler.Get)
	collections.POST("/:id/leave", collectionHandler.Leave)

	// Leaderboard
	protected.GET("/leaderboard", leaderboardHandler.List)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(appConfig.AdminAPIKey))
	admin.POST("/reconcile", adminHandler.TriggerReconcile)
	admin.GET("/reconcile", adminHandler.ReconcileStatus)

	server := &http.Server{
		Addr:    ":" + appConfig.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting cryptosim backend server on port %s", appConfig.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down", sig)
	}

	reconciler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
