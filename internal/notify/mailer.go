// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"log/slog"

	"github.com/holomush/authd/internal/observability"
	"github.com/holomush/authd/internal/token"
	"github.com/holomush/authd/pkg/errutil"
)

// Enqueuer accepts messages for background delivery.
type Enqueuer interface {
	Enqueue(msg Message) bool
}

// Mailer renders account emails and hands them to an Enqueuer. It satisfies
// auth.Mailer.
type Mailer struct {
	renderer *Renderer
	queue    Enqueuer
	logger   *slog.Logger
}

// NewMailer creates a Mailer.
func NewMailer(renderer *Renderer, queue Enqueuer, logger *slog.Logger) *Mailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mailer{renderer: renderer, queue: queue, logger: logger}
}

// SendVerification queues the email-verification message.
func (m *Mailer) SendVerification(_ context.Context, email, tok string) {
	msg, err := m.renderer.Verification(email, tok, token.EmailVerificationTTL)
	m.enqueue(KindEmailVerification, msg, err)
}

// SendPasswordReset queues the password-reset message.
func (m *Mailer) SendPasswordReset(_ context.Context, email, tok string) {
	msg, err := m.renderer.PasswordReset(email, tok, token.PasswordResetTTL)
	m.enqueue(KindPasswordReset, msg, err)
}

func (m *Mailer) enqueue(kind string, msg Message, renderErr error) {
	if renderErr != nil {
		observability.RecordNotification(kind, StatusRenderFailed)
		errutil.LogError(m.logger, "notification render failed", renderErr, "kind", kind)
		return
	}
	m.queue.Enqueue(msg)
}
