package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/health"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/processor"
	identityroutes "github.com/Ramsey-B/clover/pkg/routes/identity"
	resolutionroutes "github.com/Ramsey-B/clover/pkg/routes/resolution"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the source sync consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), root.cfg, root.logger)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger ectologger.Logger) error {
	a, err := newApp(ctx, cfg, logger, cfg.DatabaseMigrateOnStart)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Close(stopCtx); err != nil {
			logger.WithError(err).Error("Failed to stop dependencies")
		}
	}()

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		v, err := middleware.NewVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return fmt.Errorf("create token verifier: %w", err)
		}
		verifier = v
	}

	e := newRouter(cfg, logger, a.checker, verifier,
		resolutionroutes.NewHandler(a.orchestrator, logger),
		identityroutes.NewHandler(a.identity, logger),
	)

	if cfg.KafkaConsumerEnabled {
		syncProcessor := processor.NewSyncProcessor(a.orchestrator, logger, cfg.AutoApplyEnabled)
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:       cfg.KafkaBrokers,
			Topic:         cfg.SourceSyncTopic,
			ConsumerGroup: cfg.KafkaConsumerGroup,
			MaxAttempts:   cfg.KafkaHandlerAttempts,
			RetryBackoff:  time.Duration(cfg.KafkaRetryBackoffMs) * time.Millisecond,
		}, logger, syncProcessor.Handle)
		a.checker.Register("source-sync-consumer", false, consumer.Ping)
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("start source sync consumer: %w", err)
		}
		defer func() {
			if err := consumer.Stop(); err != nil {
				logger.WithError(err).Error("Failed to stop source sync consumer")
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.checker.SetReady(true)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.checker.SetReady(false)
	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type routeRegistrar interface {
	Register(g *echo.Group)
}

// newRouter mounts health, metrics and the versioned API. verifier may be nil, in which
// case the org and actor come from the X-Tenant-ID and X-User-ID headers.
func newRouter(cfg config.Config, logger ectologger.Logger, checker *health.Checker, verifier middleware.TokenVerifier, resolution, identity routeRegistrar) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if verifier != nil {
		api.Use(middleware.Authentication(logger, verifier))
	}
	api.Use(middleware.RequireOrg())

	resolution.Register(api.Group("/resolution"))
	identity.Register(api.Group("/identities"))

	return e
}
