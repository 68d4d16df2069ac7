package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"dealfx/internal/config"
	"dealfx/internal/rate"
	"dealfx/internal/scheduler"
	"dealfx/internal/server"
	"dealfx/internal/service"
	"dealfx/internal/storage"
	"dealfx/internal/webhook"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newRateProvider() *rate.Provider {
	rc := a.Config.Rate

	sources := []rate.Source{
		rate.NewJSONSource(rate.JSONSourceOptions{
			Name:      "primary",
			URL:       rc.PrimaryURL,
			RatePath:  rc.PrimaryPath,
			UserAgent: rc.UserAgent,
			Insecure:  rc.InsecureSSL,
		}),
	}
	if rc.SecondaryURL != "" {
		// The secondary endpoint reports the target->source rate, so its
		// value is inverted before use.
		sources = append(sources, rate.NewJSONSource(rate.JSONSourceOptions{
			Name:      "secondary",
			URL:       rc.SecondaryURL,
			RatePath:  rc.SecondaryPath,
			Invert:    true,
			UserAgent: rc.UserAgent,
			Insecure:  rc.InsecureSSL,
		}))
	}

	return rate.NewProvider(sources, rate.NewFileCache(rc.CachePath), rate.ProviderOptions{
		MaxAttempts:    rc.MaxAttempts,
		BackoffBase:    rc.BackoffBase,
		Budget:         rc.Budget,
		AttemptTimeout: rc.AttemptTimeout,
		TTL:            rc.CacheTTL,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run starts the webhook HTTP server and, when configured, the cache-warming
// loop, blocking until a shutdown signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	provider := a.newRateProvider()

	auth := webhook.NewAuthenticator(webhook.Options{
		Token:     a.Config.Webhook.Token,
		Secret:    a.Config.Webhook.HMACSecret,
		Tolerance: a.Config.Webhook.TimestampTolerance,
	})

	conversion := service.NewConversion(store, provider, a.Logger)

	srv := server.New(a.Config.Server, server.Dependencies{
		Auth:       auth,
		Conversion: conversion,
		Health:     store,
	}, a.Logger)

	if interval := a.Config.Rate.WarmInterval; interval > 0 {
		warm := scheduler.New(scheduler.Options{Interval: interval}, a.Logger)
		go func() {
			err := warm.Run(ctx, func(tickCtx context.Context) error {
				_, resolveErr := provider.Resolve(tickCtx)
				return resolveErr
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("cache warm loop terminated")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	a.Logger.Info().Msg("webhook service started")

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}

	a.Logger.Info().Msg("webhook service stopped")
	return nil
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	if err := storage.RunMigrations(ctx, a.Config.Database); err != nil {
		return err
	}
	a.Logger.Info().Str("path", a.Config.Database.MigrationsPath).Msg("migrations applied")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
