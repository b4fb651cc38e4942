package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/health-chat-api/cmd/mainconfig"
	"github.com/wolfman30/health-chat-api/internal/api/router"
	"github.com/wolfman30/health-chat-api/internal/app/bootstrap"
	"github.com/wolfman30/health-chat-api/internal/chat"
	appconfig "github.com/wolfman30/health-chat-api/internal/config"
	"github.com/wolfman30/health-chat-api/internal/observability/metrics"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	logger.Info("starting health-chat API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()
	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler wires storage, the LLM chain and the chat pipeline into the
// router. cleanup releases every opened connection.
func buildHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, cleanup, err
	}
	if pool != nil {
		closers = append(closers, pool.Close)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, redisConfig(cfg), logger, true)
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	store, err := bootstrap.BuildConversationStore(cfg, pool, redisClient, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	chain, err := bootstrap.BuildLLMChain(ctx, cfg, mainconfig.Loader(cfg), logger)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	closers = append(closers, func() {
		if err := chain.Close(); err != nil {
			logger.Warn("failed to close llm clients", "error", err)
		}
	})

	metricsHandler, chatMetrics := setupMetrics()
	svc, err := bootstrap.BuildChatService(cfg, bootstrap.ChatDeps{
		Store:   store,
		LLM:     chain.Client,
		AuditDB: bootstrap.BuildAuditDB(pool),
		Metrics: chatMetrics,
		Logger:  logger,
	})
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}

	return router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chat.NewHandler(svc, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
		RequestTimeout:     cfg.RequestTimeout,
	}), cleanup, nil
}

// redisConfig only dials Redis when it backs the conversation store.
func redisConfig(cfg *appconfig.Config) *appconfig.Config {
	if cfg.StoreBackend != bootstrap.StoreRedis {
		return nil
	}
	return cfg
}

func setupMetrics() (http.Handler, *metrics.ChatMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewChatMetrics(reg)
}
