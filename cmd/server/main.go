package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"

	"flower-storefront/internal/catalog"
	"flower-storefront/internal/checkout"
	"flower-storefront/internal/client"
	"flower-storefront/internal/config"
	"flower-storefront/internal/events"
	"flower-storefront/internal/handlers"
	"flower-storefront/internal/identity"
	authmiddleware "flower-storefront/internal/middleware"
	"flower-storefront/internal/session"
	"flower-storefront/internal/storage"
	"flower-storefront/internal/telemetry"
)

const version = "1.0.0"

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting flower storefront gateway", "version", version)

	ctx := context.Background()
	otelTelemetry, err := telemetry.InitMetrics(ctx, "flower-storefront", cfg.MetricsExporter)
	if err != nil {
		slog.Error("Failed to initialize OpenTelemetry", "error", err)
		os.Exit(1)
	}

	apiTelemetry, err := telemetry.NewStorefrontTelemetry(otelTelemetry.Meter())
	if err != nil {
		slog.Error("Failed to initialize API telemetry", "error", err)
		os.Exit(1)
	}

	backend := client.NewBackendClient(cfg.BackendURL, client.Options{
		Timeout:         cfg.BackendTimeout,
		BreakerEnabled:  cfg.BackendBreakerEnabled,
		BreakerFailures: cfg.BackendBreakerFailures,
		BreakerCooldown: cfg.BackendBreakerCooldown,
	})
	slog.Info("Backend client initialized", "backend_url", cfg.BackendURL)

	loader := catalog.NewLoader(backend, cfg.CatalogTTL)

	store, err := openLocalStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize local store", "error", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaOrdersTopic, cfg.KafkaBrokers...)
		slog.Info("Order events enabled", "topic", cfg.KafkaOrdersTopic, "brokers", cfg.KafkaBrokers)
	}

	manager := session.NewManager(backend, loader, store,
		identity.NewValidator(cfg.TelegramBotToken, cfg.InitDataMaxAge),
		apiTelemetry,
		session.Options{
			Secret:            cfg.SessionSecret,
			IdleTTL:           cfg.SessionTTL,
			CleanupInterval:   cfg.SessionCleanupInterval,
			TokenLifetime:     cfg.SessionMaxLifetime,
			AnonymousFallback: cfg.AnonymousFallbackEnabled,
			AnonymousID:       cfg.AnonymousTelegramID,
		})

	orchestrator := checkout.NewOrchestrator(backend, publisher, apiTelemetry, cfg.OperatorHandle)

	// Initialize handlers
	h := &handlers.Handlers{
		Session:  handlers.NewSessionHandler(manager),
		Catalog:  handlers.NewCatalogHandler(loader, apiTelemetry),
		Cart:     handlers.NewCartHandler(),
		Checkout: handlers.NewCheckoutHandler(orchestrator),
		Health:   handlers.NewHealthHandler(backend, manager, version),
	}
	slog.Debug("HTTP handlers initialized")

	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(telemetry.NewTelemetryMiddleware(apiTelemetry).Middleware)
	r.Use(middleware.Recoverer)

	rateLimiter := authmiddleware.NewRateLimiter(authmiddleware.RateLimitConfig{
		Enabled:                cfg.RateLimitEnabled,
		RequestsPerMinute:      cfg.RateLimitRequestsPerMinute,
		SessionStartsPerMinute: cfg.RateLimitSessionStartsPerMinute,
	})
	r.Use(authmiddleware.RateLimitMiddleware(rateLimiter))
	r.Use(middleware.Timeout(60 * time.Second))

	h.Register(r, authmiddleware.SessionAuth(manager))
	r.Handle("/metrics", otelTelemetry.Handler()).Methods(http.MethodGet)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Telegram-Init-Data"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	slog.Info("Starting HTTP server",
		"port", cfg.Port,
		"environment", cfg.Environment)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server ready to accept connections", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	rateLimiter.Stop()
	manager.Close()
	loader.Close()

	if err := publisher.Close(); err != nil {
		slog.Error("Error closing order publisher", "error", err)
	}
	if err := store.Close(); err != nil {
		slog.Error("Error closing local store", "error", err)
	}
	if err := otelTelemetry.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down telemetry", "error", err)
	}

	slog.Info("Server exited")
}

// openLocalStore picks Redis when configured, otherwise files under DATA_DIR
func openLocalStore(ctx context.Context, cfg *config.Config) (storage.LocalStore, error) {
	if cfg.RedisAddr != "" {
		store, err := storage.ConnectRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LocalStateTTL)
		if err != nil {
			return nil, err
		}
		slog.Info("Local state stored in Redis", "redis_addr", cfg.RedisAddr, "ttl", cfg.LocalStateTTL.String())
		return store, nil
	}

	store, err := storage.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	slog.Info("Local state stored on disk", "data_dir", cfg.DataDir)
	return store, nil
}
