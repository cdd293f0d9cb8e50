// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify renders and delivers transactional email in the background.
package notify

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Notification kinds, also used as metric labels.
const (
	KindEmailVerification = "email_verification"
	KindPasswordReset     = "password_reset"
)

// Delivery providers.
const (
	ProviderSMTP = "smtp"
	ProviderHTTP = "http"
	ProviderNone = "none"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Kind    string
	To      string
	Subject string
	HTML    string
}

// Notifier delivers a single message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and configures the delivery provider.
type Config struct {
	Provider string
	SMTP     SMTPConfig
	HTTP     HTTPConfig
}

// New builds the Notifier named by cfg.Provider. "sendgrid" is accepted as
// an alias for the HTTP provider.
func New(cfg Config, logger *slog.Logger) (Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderSMTP:
		n, err := NewSMTPNotifier(cfg.SMTP)
		if err != nil {
			return nil, err
		}
		return n, nil
	case ProviderHTTP, "sendgrid":
		n, err := NewHTTPNotifier(cfg.HTTP, nil)
		if err != nil {
			return nil, err
		}
		return n, nil
	case ProviderNone, "":
		return NewNoopNotifier(logger), nil
	default:
		return nil, oops.Code("NOTIFY_PROVIDER_UNKNOWN").
			With("provider", cfg.Provider).
			Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// NoopNotifier logs and drops every message. It is used when no mail
// provider is configured.
type NoopNotifier struct {
	logger *slog.Logger
}

// NewNoopNotifier creates a NoopNotifier.
func NewNoopNotifier(logger *slog.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

// Send logs the message without its body.
func (n *NoopNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("email not sent, no mail provider configured",
		"kind", msg.Kind,
		"subject", msg.Subject,
	)
	return nil
}
