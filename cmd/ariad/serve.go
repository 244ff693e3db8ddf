package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"aria/internal/assistant/app"
	"aria/internal/assistant/ports"
	"aria/internal/auth"
	"aria/internal/config"
	"aria/internal/contextstore"
	"aria/internal/httpclient"
	"aria/internal/llm"
	"aria/internal/observability"
	"aria/internal/providers/google"
	"aria/internal/server"
	"aria/internal/shared/logging"
)

const googleTokenURL = "https://oauth2.googleapis.com/token"

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/gmail.modify",
}

func loadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))
	logger := buildLogger(cfg.Logging)

	metrics, err := observability.NewMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	tracer, err := observability.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	store, err := buildContextStore(cfg.Context, logger)
	if err != nil {
		return err
	}

	refresher := auth.NewOAuth2Refresher(cfg.Google.ClientID, cfg.Google.ClientSecret, googleTokenURL, googleScopes)
	tokens := auth.NewManager(auth.NewMemoryStore(), refresher,
		auth.WithLogger(logger),
		auth.WithSkew(cfg.Auth.ExpirySkew),
	)

	googleHTTP := httpclient.New(cfg.Google.Timeout)
	calendar := google.NewCalendarClient(logger, google.WithCalendarHTTPClient(googleHTTP))
	gmail := google.NewGmailClient(logger, google.WithGmailHTTPClient(googleHTTP))

	llmClient := llm.NewOpenAIClient(cfg.LLM.Model, llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: cfg.LLM.Timeout,
	}, logger)

	classifier := app.NewClassifier(llmClient, logger)
	dispatcher := app.NewDispatcher(calendar, gmail, tokens, logger)

	opts := []app.OrchestratorOption{
		app.WithMaxMessages(cfg.LLM.MaxMessages),
		app.WithTokenBudget(cfg.LLM.TokenBudget),
		app.WithMetrics(metrics),
		app.WithTracer(tracer),
	}
	if cfg.Prefetch.Enabled {
		opts = append(opts, app.WithPrefetcher(
			app.NewPrefetcher(calendar, gmail, tokens, logger, cfg.Prefetch.TTL)))
	}
	orchestrator := app.NewOrchestrator(store, classifier, dispatcher, tokens, llmClient, logger, opts...)

	srv := server.New(cfg.Server, orchestrator, tokens, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown: %v", err)
	}
	_ = metrics.Shutdown(ctx)
	_ = tracer.Shutdown(ctx)
	return nil
}

func buildLogger(cfg config.LoggingConfig) logging.Logger {
	console := logging.NewComponentLogger("ariad")
	if cfg.File == "" {
		return console
	}
	return logging.Multi(console, logging.NewFileLogger("ariad", cfg.File))
}

func buildContextStore(cfg config.ContextConfig, logger logging.Logger) (ports.ContextStore, error) {
	switch cfg.Backend {
	case "file":
		store, err := contextstore.NewFileStore(cfg.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("init context store: %w", err)
		}
		return store, nil
	default:
		return contextstore.NewMemoryStore(), nil
	}
}
