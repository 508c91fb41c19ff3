package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	database "github.com/Arnonfr/urbanito/app/db"
	appLogger "github.com/Arnonfr/urbanito/app/logger"
	"github.com/Arnonfr/urbanito/app/observability/metrics"
	"github.com/Arnonfr/urbanito/app/tracer"
	"github.com/Arnonfr/urbanito/config"
	"github.com/Arnonfr/urbanito/internal/api/auth"
	"github.com/Arnonfr/urbanito/internal/api/discovery"
	"github.com/Arnonfr/urbanito/internal/api/enrichment"
	generativeAI "github.com/Arnonfr/urbanito/internal/api/generative_ai"
	"github.com/Arnonfr/urbanito/internal/api/location"
	"github.com/Arnonfr/urbanito/internal/api/routes"
	"github.com/Arnonfr/urbanito/internal/api/synthesis"
	"github.com/Arnonfr/urbanito/internal/api/tour"
	"github.com/Arnonfr/urbanito/internal/cache"
	"github.com/Arnonfr/urbanito/internal/router"
	"github.com/Arnonfr/urbanito/internal/session"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found or error loading:", err)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("FATAL: Error initializing config: %v", err)
	}

	logger := setupLogger()
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracer.InitTracingAndMetrics(cfg.Handlers.Prometheus.Port)
	metrics.InitAppMetrics()

	// --- Database ---
	dbConfig, err := database.NewDatabaseConfig(&cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		os.Exit(1)
	}
	if err = database.RunMigrations(dbConfig.ConnectionURL, logger); err != nil {
		logger.Error("Failed to run database migrations", slog.Any("error", err))
		os.Exit(1)
	}
	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if !database.WaitForDB(ctx, pool, logger) {
		logger.Error("Database not ready after waiting, exiting.")
		os.Exit(1)
	}

	// --- Dependency Injection ---
	aiClient, err := generativeAI.NewAIClient(ctx, cfg.AI.Model)
	if err != nil {
		logger.Error("Failed to initialize generative AI client", slog.Any("error", err))
		os.Exit(1)
	}

	queryCache := cache.New(logger)
	sessionMgr := session.NewManager(logger)

	discoveryRepo := discovery.NewRepository(pool, logger)
	discoverySvc := discovery.NewService(discoveryRepo, queryCache, logger)

	routesRepo := routes.NewRepository(pool, logger)
	routesSvc := routes.NewService(routesRepo, discoverySvc, logger)

	locationClient := location.NewClient(cfg.Gateways, logger)
	synthesisSvc := synthesis.NewService(aiClient, sessionMgr, routesSvc, logger).
		WithGeocoder(locationClient)
	enrichmentEngine := enrichment.NewEngine(aiClient, sessionMgr, logger)

	appMetrics := metrics.Get()
	tourHandler := tour.NewHandler(synthesisSvc, enrichmentEngine, sessionMgr, appMetrics, logger)
	routesHandler := routes.NewHandler(routesSvc, appMetrics, logger)
	discoveryHandler := discovery.NewHandler(discoverySvc, logger)

	// --- Router ---
	routerConfig := &router.Config{
		TourHandler:            tourHandler,
		RoutesHandler:          routesHandler,
		DiscoveryHandler:       discoveryHandler,
		AuthenticateMiddleware: auth.Authenticate(logger, cfg.JWT),
		OptionalAuthMiddleware: auth.OptionalAuthenticate(logger, cfg.JWT),
	}
	apiRouter := router.SetupRouter(routerConfig)

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(appLogger.StructuredLogger(logger))
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.StripSlashes)
	mux.Use(middleware.Timeout(cfg.Server.Timeout))
	mux.Use(middleware.Compress(5, "application/json"))
	mux.Mount("/", apiRouter)

	// --- HTTP Server ---
	serverAddress := cfg.Server.HTTPPort
	if serverAddress != "" && serverAddress[0] != ':' {
		serverAddress = fmt.Sprintf(":%s", serverAddress)
	}
	srv := &http.Server{
		Addr:         serverAddress,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("Starting HTTP server", slog.String("address", serverAddress))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("Shutdown signal received, starting graceful shutdown...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", slog.Any("error", err))
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Application shut down complete.")
}

// setupLogger selects tinted dev logs or JSON prod logs by APP_ENV.
func setupLogger() *slog.Logger {
	var logger *slog.Logger
	env := os.Getenv("APP_ENV")

	if env == "development" || env == "" {
		tintOpts := &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.Kitchen,
			AddSource:  true,
		}
		logger = slog.New(tint.NewHandler(os.Stdout, tintOpts))
		log.Println("Initialized development logger (tint)")
	} else {
		jsonOpts := &slog.HandlerOptions{
			Level:     slog.LevelInfo,
			AddSource: false,
		}
		logger = slog.New(slog.NewJSONHandler(os.Stdout, jsonOpts))
		log.Println("Initialized production logger (JSON)")
	}
	return logger
}
