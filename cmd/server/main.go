package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"stream-chat/ai"
	"stream-chat/auth"
	"stream-chat/broadcast"
	"stream-chat/contract"
	"stream-chat/internal"
	"stream-chat/moderation"
	"stream-chat/observability"
	"stream-chat/presence"
	"stream-chat/repositories"
	"stream-chat/services"
	"stream-chat/transport/ws"
	"stream-chat/workers"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownGrace = 5 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern ensures all 'defer' statements (like database cleanup) are
// executed before the program exits, and keeps the entry point testable.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation & AI providers
	terms, err := moderation.LoadBannedTerms()
	if err != nil {
		return exitRuntime, fmt.Errorf("banned terms loading failed: %w", err)
	}

	classifier, replier := buildProviders(config, logger)

	pipeline, err := moderation.NewPipeline(terms, classifier, config.ProviderTimeout, logger)
	if err != nil {
		return exitRuntime, fmt.Errorf("moderation pipeline failed: %w", err)
	}

	// 4. Core components
	registry := presence.NewRegistry()
	broadcaster := broadcast.NewBroadcaster(logger, config.SinkTimeout)
	messageRepository := repositories.NewMessageRepository(db, logger)
	streamRepository := repositories.NewStreamRepository(db)
	verifier := auth.NewVerifier(config.JWTSecret)

	controller := services.NewController(logger, registry, broadcaster,
		messageRepository, streamRepository, pipeline, replier,
		auth.NewModeratorCheck(config.ModeratorRole),
		services.Config{
			BotName:         config.BotName,
			HistoryLimit:    config.HistoryLimit,
			ProviderTimeout: config.ProviderTimeout,
			SinkTimeout:     config.SinkTimeout,
		})

	// 5. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Background workers
	sup := workers.NewSupervisor(logger, config.RestartInterval).
		Add(observability.NewReporter(logger, config.MetricInterval, registry.Totals))

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP server
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	ws.NewHandler(logger, controller, verifier, config.ConnectionBufferSize).Register(router)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Starting chat server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 9. Final Cleanup (Graceful Shutdown)
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Forced server shutdown", "err", err)
	}
	sup.Stop()
	<-supDone
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

// buildProviders selects the external AI collaborators. Without an API
// key, or with a feature toggled off, the disabled variant takes the
// slot and the pipeline and bot degrade gracefully.
func buildProviders(config internal.Config, logger *slog.Logger) (contract.Classifier, contract.Replier) {
	var classifier contract.Classifier = ai.Disabled{}
	var replier contract.Replier = ai.Disabled{}

	if config.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, AI moderation and bot replies disabled")
		return classifier, replier
	}

	gemini := ai.NewGemini(ai.GeminiConfig{
		APIKey: config.GeminiAPIKey,
		Model:  config.GeminiModel,
	}, logger)

	if config.AutoModeration {
		classifier = gemini
	}
	if config.AIBotEnabled {
		replier = gemini
	}
	return classifier, replier
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
