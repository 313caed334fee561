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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mihaimyh/gorelay/pkg/analytics"
	"github.com/mihaimyh/gorelay/pkg/auth"
	"github.com/mihaimyh/gorelay/pkg/billing"
	stripebilling "github.com/mihaimyh/gorelay/pkg/billing/stripe"
	"github.com/mihaimyh/gorelay/pkg/config"
	"github.com/mihaimyh/gorelay/pkg/generation"
	"github.com/mihaimyh/gorelay/pkg/relay"
	zerologadapter "github.com/mihaimyh/gorelay/pkg/relay/logger/zerolog"
	prommetrics "github.com/mihaimyh/gorelay/pkg/relay/metrics/prometheus"
	"github.com/mihaimyh/gorelay/pkg/server"
)

const metricsNamespace = "gorelay"

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := newLogger(cfg, os.Stderr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				logger.Error().Err(err).Msg("startup failed")
				return err
			}
			defer func() {
				if err := a.close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close profile store")
				}
			}()

			return run(ctx, server.New(cfg.Addr(), a.handler), cfg.ShutdownTimeout, logger)
		},
	}
}

// app is the fully wired relay.
type app struct {
	handler http.Handler
	close   func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	var (
		metrics  relay.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = prommetrics.NewMetrics(registry, metricsNamespace)
		gatherer = registry
	}

	base := zerologadapter.NewLogger(&logger)
	component := func(name string) relay.Logger {
		return base.With(relay.Field{Key: "component", Value: name})
	}

	verifier, err := auth.NewIdentityVerifier(auth.Config{
		BaseURL:    cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceRoleKey,
		Logger:     component("auth"),
		Metrics:    metrics,
	})
	if err != nil {
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg, metrics)
	if err != nil {
		return nil, err
	}

	gateway, err := stripebilling.NewGateway(stripebilling.Config{
		APIKey:  cfg.StripeSecretKey,
		BaseURL: cfg.StripeAPIURL,
		Logger:  component("stripe"),
		Metrics: metrics,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	webhookVerifier, err := stripebilling.NewVerifier(cfg.StripeWebhookSecret, 0)
	if err != nil {
		_ = closeStore()
		return nil, err
	}
	billingService, err := billing.NewService(billing.Config{
		Gateway:  gateway,
		Verifier: webhookVerifier,
		Store:    store,
		PriceID:  cfg.StripePriceID,
		AppURL:   cfg.AppURL,
		Logger:   component("billing"),
		Metrics:  metrics,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	gemini, err := generation.NewGeminiClient(generation.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiAPIURL,
		Logger:  component("generation"),
		Metrics: metrics,
	})
	if err != nil {
		_ = closeStore()
		return nil, err
	}

	proxy := analytics.NewProxy(analytics.Config{
		APIKey:  cfg.AnalyticsAPIKey,
		URL:     cfg.AnalyticsAPIURL,
		Logger:  component("analytics"),
		Metrics: metrics,
	})

	handler := server.NewRouter(server.Deps{
		Verifier:   verifier,
		Billing:    billing.NewHandler(billingService),
		Generation: generation.NewHandler(gemini, component("generation")),
		Analytics:  analytics.NewHandler(proxy),
		Logger:     logger,
		Metrics:    metrics,
		Gatherer:   gatherer,
	})

	logger.Info().
		Str("profile_store", cfg.ProfileStore).
		Bool("metrics", cfg.MetricsEnabled).
		Msg("relay configured")

	return &app{handler: handler, close: closeStore}, nil
}

// run serves until ctx is done, then drains in-flight requests for up to
// shutdownTimeout.
func run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, logger zerolog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
