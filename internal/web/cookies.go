// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/token"
)

// Cookie names and scopes.
const (
	RefreshCookie     = "refresh_token"
	RefreshCookiePath = "/refresh"
	CSRFCookie        = "csrf_token"
	CSRFHeader        = "X-CSRF-Token"

	csrfTokenBytes = 32
	csrfTTL        = 8 * time.Hour
)

func (s *Server) setRefreshCookie(c *fiber.Ctx, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     RefreshCookiePath,
		MaxAge:   int(token.RefreshTTL / time.Second),
		Secure:   s.cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteNoneMode,
	})
}

func (s *Server) setCSRFCookie(c *fiber.Ctx, value string) {
	c.Cookie(&fiber.Cookie{
		Name:     CSRFCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(csrfTTL / time.Second),
		Secure:   s.cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// expireCookie tells the browser to drop name at path.
func (s *Server) expireCookie(c *fiber.Ctx, name, path string, sameSite string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		Expires:  time.Unix(1, 0),
		Secure:   s.cfg.CookieSecure,
		HTTPOnly: true,
		SameSite: sameSite,
	})
}

func newCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("CSRF_TOKEN_FAILED").Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
