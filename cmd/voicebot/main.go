package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mealvoice/config"
	"mealvoice/internal/application"
	"mealvoice/internal/infra"
	"mealvoice/internal/infra/anthropic"
	"mealvoice/internal/infra/backend"
	"mealvoice/internal/infra/gemini"
	"mealvoice/internal/infra/httpapi"
	"mealvoice/internal/infra/speech"
	"mealvoice/internal/tzclock"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)

	if cfg.Delivery.Timezone != "" {
		if _, err := tzclock.Load(cfg.Delivery.Timezone); err != nil {
			logger.Error("invalid delivery timezone", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	client := backend.NewClient(backend.Config{
		BaseURL:     cfg.Backend.BaseURL,
		VoicebotURL: cfg.Backend.VoicebotURL,
		Timeout:     cfg.Backend.Timeout,
		Retry: infra.RetryConfig{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
		},
		Breaker: backend.BreakerConfig{
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		},
	}, createTokenSource(cfg.Backend), logger)

	scheduler := application.NewDeliveryScheduler(client, application.SchedulerConfig{
		StalenessWindow: cfg.Delivery.StalenessWindow,
		ImmediacyWindow: cfg.Delivery.ImmediacyWindow,
	}, logger)

	dispatcher := application.NewDispatcher(
		client,
		client,
		createNLU(cfg.NLU, client, logger),
		scheduler,
		application.DispatcherConfig{Timezone: cfg.Delivery.Timezone},
		logger,
	)
	dispatcher.Subscribe(application.ChangeObserverFunc(func(c application.Change) {
		logger.Info("user data changed", "kind", c.Kind, "delivery_time", c.DeliveryTime)
	}))

	speechCfg := speech.Config{
		DefaultLocale: cfg.Speech.DefaultLocale,
		ProbeTimeout:  cfg.Speech.ProbeTimeout,
	}
	if cfg.Speech.LocalMicrophone {
		speechCfg.Microphone = speech.NewLocalMicrophone(cfg.Speech.SampleRate, logger)
	}

	server := httpapi.NewServer(httpapi.Config{
		Addr:           cfg.Server.Addr,
		AuthToken:      cfg.Server.AuthToken,
		RateLimit:      cfg.Server.RateLimit,
		RateWindow:     cfg.Server.RateWindow,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DefaultLocale:  cfg.Speech.DefaultLocale,
		Speech:         speechCfg,
		Session: application.VoiceSessionConfig{
			FallbackLocale: cfg.Speech.FallbackLocale,
			QueueSize:      cfg.Speech.QueueSize,
		},
	}, dispatcher, scheduler, logger)

	logger.Info("starting meal voice service",
		"addr", cfg.Server.Addr,
		"nlu_provider", cfg.NLU.Provider,
		"timezone", dispatcher.Timezone(),
	)

	if err := server.Start(ctx); err != nil {
		logger.Error("starting server", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		logger.Error("stopping server", "error", err)
	}
	server.Wait()
}

func createTokenSource(cfg config.BackendConfig) backend.TokenSource {
	if cfg.Token != "" {
		return backend.StaticToken(cfg.Token)
	}
	return backend.NewJWTSource(cfg.JWTSecret, cfg.JWTSubject, cfg.JWTTTL)
}

func createNLU(cfg config.NLUConfig, client *backend.Client, logger *slog.Logger) application.NLU {
	switch cfg.Provider {
	case "backend":
		return client
	case "gemini":
		return gemini.NewClient(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "anthropic":
		return anthropic.NewClaudeClient(cfg.Anthropic.APIKey, cfg.Anthropic.Model)
	case "none":
		return &application.NoopNLU{}
	default:
		logger.Warn("unknown nlu provider, using backend", "provider", cfg.Provider)
		return client
	}
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
