// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/auth"
)

// Response messages.
const (
	msgVerified     = "Email verified successfully"
	msgResetSent    = "If a user with that email exists, a password reset link has been sent"
	msgPasswordSet  = "Password reset successfully"
	msgLoggedOut    = "Logged out"
	tokenTypeBearer = "bearer"
)

type messageResponse struct {
	Message string `json:"message"`
}

// accountResponse is the public view of an account.
type accountResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"username"`
	Role            string    `json:"role"`
	IsActive        bool      `json:"is_active"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

func newAccountResponse(a *account.Account) accountResponse {
	return accountResponse{
		ID:              a.ID.String(),
		Email:           a.Email,
		Username:        a.Username,
		Role:            a.Role,
		IsActive:        a.IsActive,
		IsEmailVerified: a.EmailVerified,
		CreatedAt:       a.CreatedAt,
	}
}

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

func (s *Server) ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) register(c *fiber.Ctx) error {
	var p registerPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	acct, err := s.flows.Register(c.UserContext(), p.Email, p.Username, p.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newAccountResponse(acct))
}

func (s *Server) verifyEmail(c *fiber.Ctx) error {
	var p tokenPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := s.flows.VerifyEmail(c.UserContext(), p.Token); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msgVerified})
}

// requestPasswordReset answers identically whether or not the address is
// registered. Only a store outage surfaces as an error.
func (s *Server) requestPasswordReset(c *fiber.Ctx) error {
	var p emailPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	if err := s.flows.RequestPasswordReset(c.UserContext(), p.Email); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msgResetSent})
}

func (s *Server) resetPassword(c *fiber.Ctx) error {
	var p resetPasswordPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	if p.Password != p.ConfirmPassword {
		return auth.PasswordMismatch()
	}
	if err := s.flows.ResetPassword(c.UserContext(), p.Token, p.Password); err != nil {
		return err
	}
	return c.JSON(messageResponse{Message: msgPasswordSet})
}

// login issues an access token in the body and the refresh token as a cookie
// scoped to the refresh route.
func (s *Server) login(c *fiber.Ctx) error {
	var p loginPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	sess, err := s.flows.Login(c.UserContext(), p.Username, p.Password)
	if err != nil {
		return err
	}
	return s.sendSession(c, sess)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	presented := c.Cookies(RefreshCookie)
	if presented == "" {
		return oops.Code(auth.CodeInvalidRefreshToken).
			With("reason", "missing cookie").
			Wrap(auth.ErrInvalidRefreshToken)
	}
	sess, err := s.flows.RefreshSession(c.UserContext(), presented)
	if err != nil {
		return err
	}
	return s.sendSession(c, sess)
}

func (s *Server) sendSession(c *fiber.Ctx, sess *auth.Session) error {
	s.setRefreshCookie(c, sess.RefreshToken)
	return c.JSON(tokenResponse{
		AccessToken: sess.AccessToken,
		TokenType:   tokenTypeBearer,
		ExpiresAt:   sess.AccessExpiresAt,
	})
}

// logout always succeeds. The refresh cookie is only sent on /refresh, so
// clients may also present it in the body.
func (s *Server) logout(c *fiber.Ctx) error {
	presented := c.Cookies(RefreshCookie)
	if presented == "" {
		var p struct {
			RefreshToken string `json:"refresh_token" form:"refresh_token"`
		}
		if len(c.Body()) > 0 && c.BodyParser(&p) == nil {
			presented = p.RefreshToken
		}
	}
	s.flows.Logout(c.UserContext(), presented)

	s.expireCookie(c, RefreshCookie, RefreshCookiePath, fiber.CookieSameSiteNoneMode)
	s.expireCookie(c, CSRFCookie, "/", fiber.CookieSameSiteStrictMode)
	return c.JSON(messageResponse{Message: msgLoggedOut})
}

func (s *Server) csrfToken(c *fiber.Ctx) error {
	tok, err := newCSRFToken()
	if err != nil {
		return err
	}
	s.setCSRFCookie(c, tok)
	return c.JSON(csrfResponse{CSRFToken: tok})
}

func (s *Server) me(c *fiber.Ctx) error {
	acct, err := s.flows.Authenticate(c.UserContext(), bearerToken(c))
	if err != nil {
		return err
	}
	return c.JSON(newAccountResponse(acct))
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
