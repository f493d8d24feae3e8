package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/fluentcare/parley/external/config"
	"github.com/fluentcare/parley/external/httpapi"
	identityimpl "github.com/fluentcare/parley/external/identity"
	repositoryimpl "github.com/fluentcare/parley/external/repository"
	responderimpl "github.com/fluentcare/parley/external/responder"
	synthesizerimpl "github.com/fluentcare/parley/external/synthesizer"
	transcriberimpl "github.com/fluentcare/parley/external/transcriber"
	transportimpl "github.com/fluentcare/parley/external/transport"
	webhookimpl "github.com/fluentcare/parley/external/webhook"
	"github.com/fluentcare/parley/internal/config"
	"github.com/fluentcare/parley/internal/metrics"
	"github.com/fluentcare/parley/internal/session"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 30 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching session engine")
	runEngine(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	responderimpl.RegisterDI(injector)
	synthesizerimpl.RegisterDI(injector)
	identityimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	metrics.RegisterDI(injector)
	session.RegisterDI(injector)
	transportimpl.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

func runEngine(cfg *config.Config, injector do.Injector) {
	api, err := do.Invoke[*httpapi.Server](injector)
	if err != nil {
		slog.Error("failed to resolve http api", "error", err)
		os.Exit(1)
	}
	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: http listener ready", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	manager.Shutdown(ctx)
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
}
