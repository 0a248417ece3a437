package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/NiruddeshJatra/Bhara/internal/accounts"
	"github.com/NiruddeshJatra/Bhara/internal/auth"
	"github.com/NiruddeshJatra/Bhara/internal/cache"
	"github.com/NiruddeshJatra/Bhara/internal/cleanup"
	"github.com/NiruddeshJatra/Bhara/internal/config"
	"github.com/NiruddeshJatra/Bhara/internal/database"
	"github.com/NiruddeshJatra/Bhara/internal/events"
	"github.com/NiruddeshJatra/Bhara/internal/handlers"
	"github.com/NiruddeshJatra/Bhara/internal/mailer"
	"github.com/NiruddeshJatra/Bhara/internal/product"
	"github.com/NiruddeshJatra/Bhara/internal/ratelimit"
	"github.com/NiruddeshJatra/Bhara/internal/scheduler"
	"github.com/NiruddeshJatra/Bhara/internal/search"
	"github.com/NiruddeshJatra/Bhara/internal/snapshot"
	"github.com/NiruddeshJatra/Bhara/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := config.LoadEnv(".env"); err != nil {
		log.Printf("Warning: Failed to load .env: %v", err)
	}

	configPath := getEnv("CONFIG_PATH", "config/bhara.yaml")
	appConfig, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: Failed to load config from %s: %v. Using defaults.", configPath, err)
		appConfig = config.DefaultConfig()
	} else {
		log.Printf("Loaded configuration from %s", configPath)
	}

	// Database
	var (
		store  product.Store
		gormDB *database.GormDB
	)
	dbType := getEnvOrConfig(appConfig.Database.Type, "DB_TYPE", "mysql")

	if dbType == "mysql" {
		log.Println("Using MySQL with GORM")
		mysqlCfg := appConfig.Database.MySQL

		gormDB, err = database.NewGormDB(
			getEnvOrConfig(mysqlCfg.Host, "DB_HOST", "mysql"),
			getEnvOrConfig(portString(mysqlCfg.Port), "DB_PORT", "3306"),
			getEnvOrConfig(mysqlCfg.User, "DB_USER", "bhara"),
			getEnvOrConfig(mysqlCfg.Password, "DB_PASSWORD", ""),
			getEnvOrConfig(mysqlCfg.Database, "DB_NAME", "bhara"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to MySQL: %v", err)
		}
		defer gormDB.Close()

		if err := gormDB.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		store = gormDB
	} else {
		log.Println("Using PostgreSQL (catalogue only; accounts and jobs need MySQL)")
		pgCfg := appConfig.Database.Postgres

		pgDB, err := database.NewPostgresDB(
			getEnvOrConfig(pgCfg.Host, "DB_HOST", "db"),
			getEnvOrConfig(portString(pgCfg.Port), "DB_PORT", "5432"),
			getEnvOrConfig(pgCfg.User, "DB_USER", "bhara"),
			getEnvOrConfig(pgCfg.Password, "DB_PASSWORD", ""),
			getEnvOrConfig(pgCfg.Database, "DB_NAME", "bhara"),
		)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pgDB.Close()

		if err := pgDB.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		store = pgDB
	}

	// Media storage
	mediaRoot := getEnvOrConfig(appConfig.Media.Root, "MEDIA_ROOT", "media")
	media, err := storage.NewLocalStorage(mediaRoot, appConfig.Media.BaseURL)
	if err != nil {
		log.Fatalf("Failed to prepare media root %s: %v", mediaRoot, err)
	}

	// Search index, kept current through product events
	searchClient := search.NewSearchClient(
		getEnvOrConfig(appConfig.Search.Meilisearch.Host, "MEILISEARCH_HOST", "http://meilisearch:7700"),
		getEnvOrConfig(appConfig.Search.Meilisearch.APIKey, "MEILISEARCH_KEY", ""),
		store,
	)
	if err := searchClient.InitIndex(); err != nil {
		log.Printf("Warning: Failed to initialize search index: %v", err)
	}

	var publisher product.EventPublisher
	rabbitURL := getEnvOrConfig(appConfig.RabbitMQ.URL, "RABBITMQ_URL", "")
	if rabbitURL != "" {
		pub, err := events.NewPublisher(rabbitURL, appConfig.RabbitMQ.Queue)
		if err != nil {
			log.Fatalf("Failed to create event publisher: %v", err)
		}
		defer pub.Close()
		publisher = pub

		consumer, err := events.NewConsumer(rabbitURL, appConfig.RabbitMQ.Queue, searchClient)
		if err != nil {
			log.Fatalf("Failed to create event consumer: %v", err)
		}
		defer consumer.Close()
		if err := consumer.Start(); err != nil {
			log.Fatalf("Failed to start event consumer: %v", err)
		}
	} else {
		log.Println("RABBITMQ_URL not set, indexing products inline")
		publisher = events.NewInlinePublisher(searchClient)
	}

	productService := product.NewService(store, media, publisher)

	// Auth
	jwtSecret := getEnvOrConfig(appConfig.Auth.JWTSecret, "JWT_SECRET", "")
	if jwtSecret == "" {
		log.Fatal("JWT secret is not configured (auth.jwt_secret or JWT_SECRET)")
	}
	tokens := auth.NewManager(jwtSecret, appConfig.Auth.AccessTTL(), appConfig.Auth.RefreshTTL())

	// Gin router
	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20

	r.Use(cors.New(cors.Config{
		AllowOrigins:     appConfig.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.GET("/health", healthCheck)
	r.Static(appConfig.Media.BaseURL, media.Root())

	api := r.Group("/api")
	handlers.NewProductHandler(productService, searchClient).
		Register(api, auth.RequireAuth(tokens), auth.OptionalAuth(tokens))

	// Accounts, email and daily jobs (MySQL only)
	if gormDB != nil {
		profileCache := cache.New(appConfig.Cache.LocalSize, connectRemoteCache(appConfig))

		accountService := accounts.NewService(gormDB, tokens, profileCache, media, appConfig.Auth.CodeExpiry())
		accountService.RegisterListener(mailer.NewOutboxListener(gormDB))

		limiter := ratelimit.NewRateLimiter(
			appConfig.RateLimit.RequestsPerMinute,
			appConfig.RateLimit.RequestsPerHour,
			appConfig.RateLimit.RequestsPerDay,
			appConfig.RateLimit.Enabled,
		)
		log.Printf("Rate limiter initialized: %d req/min, %d req/hour, %d req/day (enabled: %v)",
			appConfig.RateLimit.RequestsPerMinute,
			appConfig.RateLimit.RequestsPerHour,
			appConfig.RateLimit.RequestsPerDay,
			appConfig.RateLimit.Enabled,
		)
		handlers.NewAccountHandler(accountService).
			Register(api, auth.RequireAuth(tokens), ratelimit.Middleware(limiter))

		emailWorker := startEmailWorker(gormDB, appConfig)
		if emailWorker != nil {
			defer emailWorker.Stop()
		}

		snapshotService := snapshot.NewService(gormDB.DB())
		cleanupService := cleanup.NewService(gormDB.DB(), searchClient, media)

		appScheduler := scheduler.NewScheduler(snapshotService, cleanupService, appConfig)
		if err := appScheduler.Start(); err != nil {
			log.Printf("Warning: Failed to start scheduler: %v", err)
		}
		defer appScheduler.Stop()

		cleanupDefaults := cleanup.DefaultCleanupConfig()
		cleanupDefaults.RetentionDays = appConfig.Cleanup.RetentionDays
		cleanupDefaults.MaxDeletionCount = appConfig.Cleanup.MaxDeletionCount
		cleanupDefaults.CodeTTL = appConfig.Auth.CodeExpiry()

		adminToken := getEnvOrConfig(appConfig.Server.AdminToken, "ADMIN_TOKEN", "")
		handlers.NewAdminHandler(gormDB.DB(), appScheduler, emailWorker, snapshotService, cleanupService, cleanupDefaults).
			Register(api, adminToken)
		log.Println("Admin API routes registered at /api/admin/*")
	}

	port := getEnvOrConfig(appConfig.Server.Port, "PORT", "8084")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

// connectRemoteCache returns the shared cache tier, or nil for a local-only cache
func connectRemoteCache(cfg *config.Config) cache.Remote {
	switch backend := getEnvOrConfig(cfg.Cache.Backend, "CACHE_BACKEND", "none"); backend {
	case "redis":
		remote, err := cache.ConnectRedis(
			getEnvOrConfig(cfg.Cache.Redis.Addr, "REDIS_ADDR", "localhost:6379"),
			getEnvOrConfig(cfg.Cache.Redis.Password, "REDIS_PASSWORD", ""),
			cfg.Cache.Redis.DB,
		)
		if err != nil {
			log.Printf("Warning: Redis unavailable, using local cache only: %v", err)
			return nil
		}
		log.Println("Profile cache backed by Redis")
		return remote
	case "memcached":
		log.Printf("Profile cache backed by Memcached %v", cfg.Cache.Memcached.Servers)
		return cache.NewMemcacheRemote(cfg.Cache.Memcached.Servers...)
	default:
		return nil
	}
}

// startEmailWorker starts outbox delivery when SMTP is configured
func startEmailWorker(gormDB *database.GormDB, cfg *config.Config) *scheduler.EmailWorker {
	smtpCfg := cfg.SMTP
	host := getEnvOrConfig(smtpCfg.Host, "SMTP_HOST", "")
	user := getEnvOrConfig(smtpCfg.Username, "SMTP_USER", "")
	if host == "" || user == "" {
		log.Println("SMTP not configured, emails stay queued in the outbox")
		return nil
	}
	port, err := strconv.Atoi(getEnvOrConfig(portString(smtpCfg.Port), "SMTP_PORT", "587"))
	if err != nil {
		log.Printf("Warning: Invalid SMTP port, using 587: %v", err)
		port = 587
	}

	breaker := mailer.NewCircuitBreaker(smtpCfg.BreakerThreshold, smtpCfg.BreakerResetTimeout())
	sender := mailer.NewSMTPSender(host, port, user,
		getEnvOrConfig(smtpCfg.Password, "SMTP_PASSWORD", ""), smtpCfg.From, breaker)

	worker := scheduler.NewEmailWorker(gormDB.DB(), sender, cfg.Server.PublicURL, smtpCfg.PollInterval())
	worker.Start()
	log.Println("Email worker started")
	return worker
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now(),
	})
}

func portString(port int) string {
	if port <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrConfig prefers the environment, then the config value, then the fallback
func getEnvOrConfig(configValue, envKey, defaultValue string) string {
	if value := os.Getenv(envKey); value != "" {
		return value
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}
