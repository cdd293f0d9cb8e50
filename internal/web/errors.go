// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/account"
	"github.com/holomush/authd/internal/auth"
	"github.com/holomush/authd/pkg/errutil"
)

// CodeCSRFInvalid is returned when the double-submit check fails.
const CodeCSRFInvalid = "CSRF_INVALID"

// CodeRateLimited is returned by the rate limiter hook.
const CodeRateLimited = "RATE_LIMITED"

type errorResponse struct {
	Detail string `json:"detail"`
}

type failure struct {
	status int
	detail string
}

// failures maps error codes to the status and the client-safe detail.
var failures = map[string]failure{
	auth.CodeValidationFailed:     {fiber.StatusBadRequest, "Invalid request"},
	auth.CodeInvalidUsername:      {fiber.StatusBadRequest, "Username must be 3-30 letters, digits, underscores or hyphens"},
	auth.CodeWeakPassword:         {fiber.StatusBadRequest, "Password must be at least 8 characters and contain a letter and a digit"},
	auth.CodePasswordMismatch:     {fiber.StatusBadRequest, "Passwords do not match"},
	account.CodeDuplicateEmail:    {fiber.StatusBadRequest, "Email already registered"},
	account.CodeDuplicateUsername: {fiber.StatusBadRequest, "Username already taken"},
	auth.CodeInvalidToken:         {fiber.StatusBadRequest, "Invalid or expired token"},
	auth.CodeInvalidCredentials:   {fiber.StatusUnauthorized, "Invalid credentials"},
	auth.CodeInvalidRefreshToken:  {fiber.StatusUnauthorized, "Invalid or expired refresh token"},
	auth.CodeEmailNotVerified:     {fiber.StatusForbidden, "Email not verified"},
	CodeCSRFInvalid:               {fiber.StatusForbidden, "CSRF token missing or invalid"},
	CodeRateLimited:               {fiber.StatusTooManyRequests, "Too many requests"},
	account.CodeNotFound:          {fiber.StatusNotFound, "Not found"},
	account.CodeStoreUnavailable:  {fiber.StatusInternalServerError, "Service temporarily unavailable"},
}

var internalFailure = failure{fiber.StatusInternalServerError, "Internal server error"}

// classify resolves err to a status and detail. Validation failures name the
// offending field; nothing else from the error reaches the client.
func classify(err error) failure {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code >= fiber.StatusInternalServerError {
			return internalFailure
		}
		return failure{fe.Code, fe.Message}
	}

	code := errutil.Code(err)
	f, ok := failures[code]
	if !ok {
		return internalFailure
	}
	if code == auth.CodeValidationFailed {
		if field, ok := contextValue(err, "field"); ok {
			f.detail = "Invalid " + field
		}
	}
	return f
}

func contextValue(err error, key string) (string, bool) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "", false
	}
	v, ok := oopsErr.Context()[key].(string)
	return v, ok && v != ""
}

// errorHandler renders every handler error as {"detail": ...}.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		f := classify(err)
		if f.status >= fiber.StatusInternalServerError {
			// Flow errors are already logged with their context by the service.
			if errutil.Code(err) == "" {
				errutil.LogError(logger, "request failed", err,
					"method", c.Method(),
					"path", c.Path(),
				)
			}
		}
		return c.Status(f.status).JSON(errorResponse{Detail: f.detail})
	}
}
