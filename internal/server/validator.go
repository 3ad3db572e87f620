package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/vaguinhas/vaguinhas/internal/catalog"
	"github.com/vaguinhas/vaguinhas/pkg/apperror"
)

// Validator adapts go-playground/validator to echo.Validator. Failures are
// returned as apperror.ErrValidation with one detail per JSON field.
type Validator struct {
	v *validator.Validate
}

func newValidator(cat *catalog.Catalog) (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
	if cat != nil {
		if err := cat.RegisterValidations(v); err != nil {
			return nil, fmt.Errorf("register catalog validations: %w", err)
		}
	}
	return &Validator{v: v}, nil
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.ErrBadRequest.WithInternal(err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fieldPath(fe)] = describe(fe)
	}
	return apperror.ErrValidation.WithDetails(details)
}

// BindAndValidate binds the request into dst and validates it.
func BindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.ErrBadRequest.WithMessage("Invalid request body").WithInternal(err)
	}
	return c.Validate(dst)
}

// fieldPath drops the top-level struct name: "subscribeRequest.stacks[1]" -> "stacks[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "url", "http_url":
		return "must be a valid URL"
	case "min":
		return "must have at least " + fe.Param() + " characters or items"
	case "max":
		return "must have at most " + fe.Param() + " characters or items"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "seniority":
		return "is not a known seniority level"
	case "stack":
		return "is not a known stack"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
