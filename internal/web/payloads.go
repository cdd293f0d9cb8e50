// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package web

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/oops"

	"github.com/holomush/authd/internal/auth"
)

// maxFieldLength bounds free-text fields before they reach the flows.
const maxFieldLength = 1024

type registerPayload struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (p registerPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(0, maxFieldLength)),
		validation.Field(&p.Username, validation.Required, validation.Length(0, maxFieldLength)),
		validation.Field(&p.Password, validation.Required, validation.Length(0, maxFieldLength)),
	)
}

type tokenPayload struct {
	Token string `json:"token" form:"token"`
}

func (p tokenPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required, validation.Length(0, 4*maxFieldLength)),
	)
}

type emailPayload struct {
	Email string `json:"email" form:"email"`
}

func (p emailPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(0, maxFieldLength)),
	)
}

type resetPasswordPayload struct {
	Token           string `json:"token" form:"token"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

func (p resetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Token, validation.Required, validation.Length(0, 4*maxFieldLength)),
		validation.Field(&p.Password, validation.Required, validation.Length(0, maxFieldLength)),
		validation.Field(&p.ConfirmPassword, validation.Required, validation.Length(0, maxFieldLength)),
	)
}

// loginPayload follows the OAuth2 password grant form; JSON is accepted too.
type loginPayload struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (p loginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Required, validation.Length(0, maxFieldLength)),
		validation.Field(&p.Password, validation.Required, validation.Length(0, maxFieldLength)),
	)
}

// bind parses the body into payload and runs its structural validation.
func bind(c *fiber.Ctx, payload validation.Validatable) error {
	if err := c.BodyParser(payload); err != nil {
		return oops.Code(auth.CodeValidationFailed).
			With("reason", "malformed body").
			Wrap(errors.Join(auth.ErrValidation, err))
	}
	if err := payload.Validate(); err != nil {
		b := oops.Code(auth.CodeValidationFailed).With("reason", err.Error())
		if field := firstField(err); field != "" {
			b = b.With("field", field)
		}
		return b.Wrap(auth.ErrValidation)
	}
	return nil
}

// firstField returns the alphabetically first failing field, so the detail
// shown to clients is stable.
func firstField(err error) string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ""
	}
	fields := make([]string, 0, len(verrs))
	for f := range verrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields[0]
}
