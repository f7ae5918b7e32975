package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"

	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/config"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/database"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/logging"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mail"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/mapping"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/memberpress"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/routes"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/services"
	"github.com/ahmetcoskunkizilkaya/membership-sync/internal/settings"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout)
	logging.Setup()

	cfg := config.Load()

	if cfg.DBPassword == "" {
		slog.Error("DB_PASSWORD environment variable is required")
		os.Exit(1)
	}
	if cfg.AdminToken == "" && cfg.AdminTokenHash == "" && cfg.AdminJWTSecret == "" {
		slog.Warn("no admin credentials configured, admin API is locked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// Persisted log handler (LOG_PERSIST_LEVEL+ async batch)
	logStore := logging.NewGormStore(database.DB)
	dbLogHandler := logging.NewDBHandler(logStore, cfg.LogPersistLevel)
	logging.Setup(dbLogHandler)

	// Settings: env values seed the first boot, persisted values win after
	defaults := settings.Settings{
		WebhookSecret: cfg.ThriveCartSecret,
		APIKey:        cfg.MemberPressAPIKey,
		BaseURL:       cfg.MemberPressURL,
		AdminEmail:    cfg.AdminEmail,
		LogDays:       cfg.LogRetentionDays,
	}
	if cfg.MappingsFile != "" {
		entries, err := mapping.LoadFile(cfg.MappingsFile)
		if err != nil {
			slog.Error("failed to load mappings file", "path", cfg.MappingsFile, "error", err)
			os.Exit(1)
		}
		defaults.Mappings = entries
		slog.Info("mappings file loaded", "path", cfg.MappingsFile, "entries", len(entries))
	}

	store := settings.NewStore(settings.NewGormRepository(database.DB))
	if err := store.Load(ctx, defaults); err != nil {
		slog.Error("failed to load settings", "error", err)
		os.Exit(1)
	}
	if migrated, err := store.MigrateMappings(ctx); err != nil {
		slog.Error("mapping migration failed", "error", err)
		os.Exit(1)
	} else if migrated {
		slog.Info("legacy mappings migrated")
	}

	// Log cleanup (retention from settings)
	cleanupDone := make(chan struct{})
	logging.StartCleanup(logStore, func() int { return store.Snapshot().LogDays }, cleanupDone)

	// Membership cache (optional)
	var cache *memberpress.RedisCache
	if cfg.RedisURL != "" {
		c, err := memberpress.NewRedisCache(ctx, cfg.RedisURL, time.Hour)
		if err != nil {
			slog.Warn("redis unavailable, membership cache disabled", "error", err)
		} else {
			cache = c
			slog.Info("membership cache enabled")
		}
	}

	httpClient := &http.Client{}
	newClient := func(s settings.Settings) services.MembershipAPI {
		client := memberpress.NewClient(memberpress.Config{
			BaseURL:       s.BaseURL,
			APIKey:        s.APIKey,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
			LookupTimeout: cfg.LookupTimeout,
		}, httpClient)
		if cache != nil {
			client.WithCache(cache)
		}
		return client
	}

	// Admin notifications
	var mailer services.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Sender:   cfg.SMTPSender,
		})
	} else {
		slog.Warn("SMTP_HOST not set, admin notifications disabled")
	}

	// Services
	notifier := services.NewNotificationService(mailer, nil)
	syncService := services.NewSyncService(store, newClient, notifier, nil)

	// Handlers
	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(services.NewAdminAuthService(cfg)),
		Health:   handlers.NewHealthHandler(database.Ping),
		Webhook:  handlers.NewWebhookHandler(syncService),
		Status:   handlers.NewStatusHandler(store, newClient),
		Settings: handlers.NewSettingsHandler(store),
		Tools:    handlers.NewAdminToolsHandler(syncService, logStore),
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: customErrorHandler,
	})

	// Sentry middleware
	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Routes
	routes.Setup(app, cfg, h)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	dbLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if cache != nil {
		if err := cache.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	// Close database connections
	if err := database.Close(); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	// Only expose error details for client errors (4xx), not server errors (5xx)
	if code >= 500 {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}

	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}
