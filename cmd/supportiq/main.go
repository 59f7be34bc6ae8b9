package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/supportiq/supportiq/internal/adapter/contentsafety"
	"github.com/supportiq/supportiq/internal/adapter/fabriciq"
	"github.com/supportiq/supportiq/internal/adapter/foundryiq"
	siqhttp "github.com/supportiq/supportiq/internal/adapter/http"
	"github.com/supportiq/supportiq/internal/adapter/inmem"
	"github.com/supportiq/supportiq/internal/adapter/natskv"
	"github.com/supportiq/supportiq/internal/adapter/otel"
	"github.com/supportiq/supportiq/internal/adapter/postgres"
	"github.com/supportiq/supportiq/internal/adapter/ristretto"
	"github.com/supportiq/supportiq/internal/adapter/tiered"
	"github.com/supportiq/supportiq/internal/config"
	"github.com/supportiq/supportiq/internal/logger"
	"github.com/supportiq/supportiq/internal/port/cache"
	"github.com/supportiq/supportiq/internal/port/interactionsource"
	"github.com/supportiq/supportiq/internal/port/knowledgesource"
	"github.com/supportiq/supportiq/internal/port/safety"
	"github.com/supportiq/supportiq/internal/port/usagesource"
	"github.com/supportiq/supportiq/internal/resilience"
	"github.com/supportiq/supportiq/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"port", cfg.Server.Port,
		"sources_mode", cfg.Sources.Mode,
		"analysis_window_days", cfg.Orchestrator.AnalysisWindowDays,
	)

	ctx := context.Background()

	// --- Telemetry ---
	shutdownTelemetry, err := otel.Init(ctx, cfg.Logging.Service, cfg.Telemetry.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	// PostgreSQL
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	log.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations applied")

	// Tiered cache: ristretto in-process, NATS JetStream KV shared.
	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()

	l2, closeNATS, err := natskv.Connect(ctx, cfg.NATS.URL, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
	if err != nil {
		return fmt.Errorf("nats kv: %w", err)
	}
	defer closeNATS()
	log.Info("nats kv connected", "bucket", cfg.Cache.L2Bucket)

	sharedCache := tiered.New(l1, l2, cfg.Cache.L1Expire)

	// --- Data sources ---
	usageSrc, knowledgeSrc, interactionSrc, moderator := buildSources(cfg, sharedCache, log)

	// --- Services ---
	store := postgres.NewStore(pool)

	orchestrator := service.NewOrchestrator(
		service.NewRetrievalAgent(usageSrc, knowledgeSrc, log),
		service.NewSentimentAgent(interactionSrc, log),
		service.NewReasoningAgent(log),
		service.NewValidationAgent(moderator, log),
		store,
		cfg.Orchestrator.LatencyTarget,
		log,
	)

	recommendationSvc := service.NewRecommendationService(
		orchestrator, store, sharedCache, metrics,
		cfg.Orchestrator.AnalysisWindowDays,
		cfg.Orchestrator.DedupWindowMonths,
		cfg.Cache.RecommendationsTTL,
		log,
	)
	customerSvc := service.NewCustomerService(
		store, usageSrc, interactionSrc, sharedCache, cfg.Cache.ProfileTTL, log,
	)

	// --- HTTP ---
	handlers := siqhttp.NewHandlers(recommendationSvc, customerSvc)
	router := siqhttp.NewRouter(handlers, cfg.Server.CORSOrigin, cfg.Logging.Service)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	<-done
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// buildSources wires the external data sources. Local mode serves fixtures;
// remote mode talks to the Fabric IQ, Foundry IQ and content safety services,
// with the usage source behind a circuit breaker.
func buildSources(cfg *config.Config, sharedCache cache.Cache, log *slog.Logger) (usagesource.Source, knowledgesource.Source, interactionsource.Source, safety.Validator) {
	if cfg.Sources.Mode == "local" {
		log.Info("using in-memory data sources")
		return inmem.NewUsageSource(), inmem.NewKnowledgeSource(), inmem.NewInteractionSource(), inmem.NewSafetyValidator()
	}

	breaker := resilience.NewBreaker("fabriciq",
		cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, cfg.Breaker.HalfOpenMaxCalls)

	usageSrc := fabriciq.NewClient(
		cfg.Sources.FabricIQ.URL, cfg.Sources.FabricIQ.APIKey,
		breaker, sharedCache, cfg.Cache.UsageTrendsTTL, log)
	knowledgeSrc := foundryiq.NewClient(
		cfg.Sources.FoundryIQ.URL, cfg.Sources.FoundryIQ.APIKey, log)
	moderator := contentsafety.NewClient(
		cfg.Sources.ContentSafety.URL, cfg.Sources.ContentSafety.APIKey, log)

	// Interaction history ships with the CRM export into Fabric IQ as well.
	interactionSrc := fabriciq.NewInteractionClient(
		cfg.Sources.FabricIQ.URL, cfg.Sources.FabricIQ.APIKey, breaker, log)

	return usageSrc, knowledgeSrc, interactionSrc, moderator
}
