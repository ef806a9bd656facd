// Package main provides the main entry point for the Traffic metrics synchronization API
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/trafficlab/traffic-api/app/handlers"
	"github.com/trafficlab/traffic-api/app/middleware"
	"github.com/trafficlab/traffic-api/app/router"
	"github.com/trafficlab/traffic-api/app/scheduler"
	"github.com/trafficlab/traffic-api/app/services"
	businessflow "github.com/trafficlab/traffic-api/business_flow"
	"github.com/trafficlab/traffic-api/config"
	"github.com/trafficlab/traffic-api/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	issueTokenFor := flag.Uint("issue-token", 0, "print an access token for the given user id and exit")
	flag.Parse()

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Operators mint tokens here to call the trigger endpoints; the
	// dashboard issues its own against the same secret.
	if *issueTokenFor != 0 {
		if err := issueToken(cfg, *issueTokenFor); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	log.Println("Starting traffic-api...")

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
// issueToken prints a fresh access token for the user id to stdout
func issueToken(cfg *config.ProductionConfig, userID uint) error {
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return err
	}

	token, err := tokenService.GenerateToken(userID)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		cancel := startCacheHealthMonitor(context.Background(), rc, 30*time.Second)
		stopFuncs = append(stopFuncs, cancel)
	}

	// Initialize repositories
	integrationRepo := repository.NewIntegrationRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	metricRepo := repository.NewCampaignMetricRepository(db)
	insightRepo := repository.NewAdInsightRepository(db)

	// Initialize credential resolution
	secretStore, err := services.NewVaultSecretStore(cfg.Vault)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret store: %w", err)
	}
	resolver, err := services.NewCredentialResolver(secretStore, cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential resolver: %w", err)
	}

	// Initialize platform clients
	metaClient := services.NewMetaClient(cfg.Platforms.Meta)
	googleAdsClient := services.NewGoogleAdsClient(cfg.Platforms.GoogleAds)
	tiktokClient := services.NewTikTokClient(cfg.Platforms.TikTok)

	notifier := services.NewWebhookNotificationService(cfg.Notification)

	// Initialize token service
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Initialize flows
	syncFlow := businessflow.NewMetricsSyncFlow(
		integrationRepo,
		campaignRepo,
		metricRepo,
		resolver,
		[]services.PlatformAdapter{metaClient, googleAdsClient, tiktokClient},
		rc,
		cfg.Sync,
		cfg.Cache.RedisPrefix,
	)
	insightsFlow := businessflow.NewInsightsImportFlow(
		integrationRepo,
		insightRepo,
		resolver,
		metaClient,
		notifier,
		cfg.Sync,
	)

	// Initialize handlers and router
	syncHandler := handlers.NewSyncHandler(syncFlow, insightsFlow)
	authMW := middleware.NewAuthMiddleware(tokenService)

	r := router.NewFiberRouter(cfg, syncHandler, authMW, db, rc, secretStore)

	// Start the background sync scheduler
	syncScheduler := scheduler.NewSyncScheduler(syncFlow, insightsFlow, rc, cfg.Sync, cfg.Logging)
	stopFuncs = append(stopFuncs, syncScheduler.Start(context.Background()))

	return &Application{
		router:    r,
		config:    cfg,
		server:    r.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
