// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package web exposes the auth flows over HTTP.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/auth"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit = 1 << 20

// Flows is the subset of auth.Service the HTTP surface calls.
type Flows interface {
	Register(ctx context.Context, email, username, password string) (*account.Account, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Login(ctx context.Context, identifier, password string) (*auth.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*auth.Session, error)
	Logout(ctx context.Context, refreshToken string)
	Authenticate(ctx context.Context, accessToken string) (*account.Account, error)
}

// Config controls the HTTP surface.
type Config struct {
	Addr string
	// CORSOrigins lists allowed browser origins. "*" allows any origin but
	// disables credentialed requests.
	CORSOrigins []string
	// CookieSecure sets the Secure attribute on session cookies. Browsers drop
	// SameSite=None cookies without it, so only disable for plain-HTTP development.
	CookieSecure bool
	CSRFEnforce  bool
	BodyLimit    int
	// RateLimiter runs before every route when set.
	RateLimiter fiber.Handler
}

// Server serves the auth endpoints.
type Server struct {
	cfg    Config
	flows  Flows
	logger *slog.Logger
	app    *fiber.App

	mu       sync.Mutex
	listener net.Listener
	running  bool
}

// NewServer builds the fiber app and registers all routes.
func NewServer(cfg Config, flows Flows, logger *slog.Logger) (*Server, error) {
	if flows == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("flows are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}

	s := &Server{cfg: cfg, flows: flows, logger: logger}
	s.app = fiber.New(fiber.Config{
		AppName:               "authd",
		BodyLimit:             cfg.BodyLimit,
		DisableStartupMessage: true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          errorHandler(logger),
	})
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	app := s.app
	app.Use(requestid.New())
	app.Use(requestLogger(s.logger))
	app.Use(recover.New(recover.Config{EnableStackTrace: true, StackTraceHandler: s.logPanic}))
	app.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	if s.cfg.RateLimiter != nil {
		app.Use(s.cfg.RateLimiter)
	}
	if s.cfg.CSRFEnforce {
		app.Use(csrfProtect())
	}

	app.Get("/ping", s.ping)
	app.Get("/health", s.ping)

	app.Post("/register", s.register)
	app.Post("/verify-email", s.verifyEmail)
	app.Post("/request-password-reset", s.requestPasswordReset)
	app.Post("/reset-password", s.resetPassword)
	app.Post("/token", s.login)
	app.Post("/refresh", s.refresh)
	app.Post("/logout", s.logout)
	app.Get("/csrf-token", s.csrfToken)
	app.Get("/me", s.me)
}

func (s *Server) logPanic(c *fiber.Ctx, e any) {
	s.logger.Error("panic in handler",
		"method", c.Method(),
		"path", c.Path(),
		"panic", e,
	)
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  "GET,POST,OPTIONS",
		AllowHeaders:  "Content-Type,Authorization," + CSRFHeader,
		ExposeHeaders: "X-Request-ID",
		MaxAge:        600,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOrigins = "*"
			return cfg
		}
	}
	if len(origins) > 0 {
		cfg.AllowOrigins = strings.Join(origins, ",")
		cfg.AllowCredentials = true
	}
	return cfg
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start binds the listen address and serves in the background. The returned
// channel receives at most one serve error and is closed when serving ends.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, oops.Code("WEB_ALREADY_RUNNING").Errorf("web server already running")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.cfg.Addr).Wrap(err)
	}
	s.listener = ln
	s.running = true

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.app.Listener(ln); serveErr != nil && !errors.Is(serveErr, net.ErrClosed) {
			errCh <- oops.Code("WEB_SERVE_FAILED").Wrap(serveErr)
		}
	}()
	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		return oops.Code("WEB_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}
