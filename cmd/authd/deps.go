// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/config"
	"github.com/holomush/authd/internal/notify"
	"github.com/holomush/authd/internal/observability"
)

// OpenedStore is an account store plus its lifecycle hooks.
type OpenedStore struct {
	Store account.Store
	// Ping reports whether the backend is reachable; nil means always ready.
	Ping  func(ctx context.Context) error
	Close func()
}

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreOpener connects the configured account store.
	// Default: openStore
	StoreOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*OpenedStore, error)

	// NotifierFactory builds the outbound email transport.
	// Default: notify.New
	NotifierFactory func(cfg notify.Config, logger *slog.Logger) (notify.Notifier, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnReady is called once every listener is bound.
	OnReady func(httpAddr, metricsAddr string)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
