// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil holds helpers for working with oops-coded errors.
package errutil

import (
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops error code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	var code any = oopsErr.Code()
	if code == nil {
		return ""
	}
	return fmt.Sprint(code)
}

// attrs flattens an error into slog key/value pairs. Coded errors contribute
// their code and structured context.
func attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	out := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		out = append(out, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		out = append(out, "context", ctx)
	}
	return out
}

// LogError logs err at ERROR with its code and context.
func LogError(logger *slog.Logger, msg string, err error, extra ...any) {
	logger.Error(msg, append(attrs(err), extra...)...)
}

// LogWarn logs err at WARN. Use it for best-effort failures that do not
// change the outcome of the request.
func LogWarn(logger *slog.Logger, msg string, err error, extra ...any) {
	logger.Warn(msg, append(attrs(err), extra...)...)
}
