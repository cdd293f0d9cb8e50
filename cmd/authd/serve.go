// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authd/internal/account/memory"
	"github.com/holomush/authd/internal/account/postgres"
	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/logging"
	"github.com/holomush/authd/internal/notify"
	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/store"
	"github.com/holomush/authd/internal/token"
	"github.com/holomush/authd/internal/web"
	"github.com/holomush/authd/pkg/errutil"
)

const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
	rateLimitWindow  = time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the authentication HTTP API together with the metrics and
health endpoints and the background email dispatcher.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.ResolvePath(configFile), cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the service with injectable dependencies and blocks
// until a signal arrives, ctx ends or a listener fails.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = openStore
	}
	if deps.NotifierFactory == nil {
		deps.NotifierFactory = notify.New
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetDefault(logging.Options{
		Service: "authd",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
	})
	logger.Info("starting authd",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Backend,
		"mail_provider", cfg.Mail.Provider,
	)

	opened, err := deps.StoreOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.With("operation", "open account store").Wrap(err)
	}
	defer opened.Close()

	codec, err := token.NewCodec([]byte(cfg.SecretKey))
	if err != nil {
		return err
	}

	notifier, err := deps.NotifierFactory(notifyConfig(cfg.Mail), logger)
	if err != nil {
		return err
	}
	renderer, err := notify.NewRenderer(notify.RendererConfig{AppName: cfg.AppName, FrontendURL: cfg.FrontendURL})
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(notifier, notify.DispatcherOptions{
		QueueSize:   cfg.Mail.QueueSize,
		Workers:     cfg.Mail.Workers,
		SendTimeout: cfg.Mail.SendTimeout,
	}, logger)
	if err := dispatcher.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := dispatcher.Stop(stopCtx); err != nil {
			errutil.LogWarn(logger, "notification dispatcher did not drain", err)
		}
	}()

	svc, err := auth.NewServiceWithLogger(
		auth.Config{RequireVerifiedEmail: cfg.RequireVerifiedEmail},
		opened.Store,
		codec,
		auth.NewArgon2idHasher(),
		notify.NewMailer(renderer, dispatcher, logger),
		logger,
	)
	if err != nil {
		return err
	}

	webCfg := web.Config{
		Addr:         cfg.HTTP.Addr,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		CookieSecure: cfg.HTTP.CookieSecure,
		CSRFEnforce:  cfg.HTTP.CSRFEnforce,
		BodyLimit:    cfg.HTTP.BodyLimit,
	}
	if cfg.HTTP.RateLimit > 0 {
		webCfg.RateLimiter = web.NewRateLimiter(cfg.HTTP.RateLimit, rateLimitWindow)
	}
	httpServer, err := web.NewServer(webCfg, svc, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErrChan, err := httpServer.Start()
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, httpErrChan, "http")

	var obsServer ObservabilityServer
	metricsAddr := ""
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, readiness(opened))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			if stopErr := httpServer.Stop(stopCtx); stopErr != nil {
				errutil.LogWarn(logger, "failed to stop http server during cleanup", stopErr)
			}
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		metricsAddr = obsServer.Addr()
		logger.Info("observability server started", "addr", metricsAddr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if cmd != nil {
		cmd.Println("authd started")
	}
	logger.Info("authd ready", "http_addr", httpServer.Addr(), "metrics_addr", metricsAddr)
	if deps.OnReady != nil {
		deps.OnReady(httpServer.Addr(), metricsAddr)
	}

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "error stopping http server", err)
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "notification dispatcher did not drain", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogWarn(logger, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore connects the configured backend. The postgres backend retries the
// initial connection and optionally applies migrations first.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*OpenedStore, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		return &OpenedStore{Store: memory.NewStore(), Close: func() {}}, nil
	case config.StorePostgres:
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store.backend").Errorf("unknown store backend %q", cfg.Backend)
	}

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info("database migrations applied")
	}

	pool, err := store.Open(ctx, store.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.MaxConns,
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectBackoff:  cfg.ConnectBackoff,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to database")

	accounts := postgres.NewStore(pool, cfg.QueryTimeout)
	return &OpenedStore{Store: accounts, Ping: accounts.Ping, Close: pool.Close}, nil
}

func migrateUp(databaseURL string) error {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

// readiness reports ready while the store answers a ping.
func readiness(opened *OpenedStore) observability.ReadinessChecker {
	if opened.Ping == nil {
		return func() bool { return true }
	}
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return opened.Ping(ctx) == nil
	}
}

func notifyConfig(m config.MailConfig) notify.Config {
	return notify.Config{
		Provider: m.Provider,
		SMTP: notify.SMTPConfig{
			Host:        m.Server,
			Port:        m.Port,
			Username:    m.Username,
			Password:    m.Password,
			From:        m.From,
			FromName:    m.FromName,
			StartTLS:    m.StartTLS && !m.ImplicitTLS,
			ImplicitTLS: m.ImplicitTLS,
		},
		HTTP: notify.HTTPConfig{
			Endpoint: m.Endpoint,
			APIKey:   m.APIKey,
			From:     m.From,
			FromName: m.FromName,
		},
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
