// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/observability"
)

// requestLogger logs one line per request and records the request metric.
// It runs after the error handler has written the response status.
func requestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		chainErr := c.Next()
		if chainErr != nil {
			// Let the app's error handler set the final status before we read it.
			if err := c.App().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		observability.RecordHTTPRequest(c.Method(), route, status)

		level := slog.LevelInfo
		if status >= fiber.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.UserContext(), level, "http request",
			"method", c.Method(),
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"ip", c.IP(),
		)
		return nil
	}
}

// csrfProtect enforces the double-submit check on state-changing methods:
// the csrf_token cookie must be present and equal to the X-CSRF-Token header.
func csrfProtect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}
		cookie := c.Cookies(CSRFCookie)
		header := c.Get(CSRFHeader)
		if cookie == "" || header == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
			return oops.Code(CodeCSRFInvalid).
				With("method", c.Method()).
				With("path", c.Path()).
				Errorf("csrf token missing or invalid")
		}
		return c.Next()
	}
}

// NewRateLimiter returns a per-client-IP limiter allowing limit requests per
// window. It is meant for Config.RateLimiter.
func NewRateLimiter(limit int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return oops.Code(CodeRateLimited).With("ip", c.IP()).Errorf("rate limit exceeded")
		},
	})
}
