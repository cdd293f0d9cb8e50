// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"bytes"
	"embed"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/template/django/v3"
	"github.com/samber/oops"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer turns notification kinds into HTML messages using the embedded
// django templates.
type Renderer struct {
	engine      *django.Engine
	appName     string
	frontendURL string
}

// RendererConfig configures links and branding in rendered mail.
type RendererConfig struct {
	AppName     string
	FrontendURL string
}

// NewRenderer loads the embedded templates.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATES_FAILED").Wrap(err)
	}
	engine := django.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, oops.Code("NOTIFY_TEMPLATES_FAILED").Wrap(err)
	}
	if cfg.AppName == "" {
		cfg.AppName = "authd"
	}
	return &Renderer{
		engine:      engine,
		appName:     cfg.AppName,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
	}, nil
}

// Verification renders the email-verification message for email.
func (r *Renderer) Verification(email, token string, ttl time.Duration) (Message, error) {
	return r.render(KindEmailVerification, email, "Verify Your Email Address", map[string]any{
		"verification_url": r.link("/verify-email", token),
		"expires_in":       humanDuration(ttl),
	})
}

// PasswordReset renders the password-reset message for email.
func (r *Renderer) PasswordReset(email, token string, ttl time.Duration) (Message, error) {
	return r.render(KindPasswordReset, email, "Reset Your Password", map[string]any{
		"reset_url":  r.link("/reset-password", token),
		"expires_in": humanDuration(ttl),
	})
}

func (r *Renderer) render(kind, email, subject string, data map[string]any) (Message, error) {
	data["app_name"] = r.appName
	data["username"] = displayName(email)

	var buf bytes.Buffer
	if err := r.engine.Render(&buf, kind, data); err != nil {
		return Message{}, oops.Code("NOTIFY_RENDER_FAILED").With("kind", kind).Wrap(err)
	}
	return Message{
		Kind:    kind,
		To:      email,
		Subject: subject,
		HTML:    buf.String(),
	}, nil
}

func (r *Renderer) link(path, token string) string {
	return r.frontendURL + path + "?token=" + url.QueryEscape(token)
}

// displayName greets the user by the local part of their address.
func displayName(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

func humanDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return plural(int(d/time.Hour), "hour")
	}
	return plural(int(d.Round(time.Minute)/time.Minute), "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
