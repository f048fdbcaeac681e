package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"bannerly/internal/types"
)

// Validator wraps go-playground/validator with domain-specific rules and
// translates field errors into structured AppErrors.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers custom validation tags.
//
// Custom tags:
//   - platform: value is a supported social platform name (after normalization).
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()

	// Registration only fails for a nil func or empty tag.
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		return types.ValidPlatform(types.NormalizePlatform(fl.Field().String()))
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the struct's tags and returns a *types.AppError
// describing the first batch of failures, or nil if valid. Field names in the
// details map use the JSON-style snake_case of the struct field.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: programming error (non-struct input).
		v.logger.Error("validator invoked with invalid input", "error", err.Error())
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation could not be performed", err)
	}

	fields := make(map[string]any, len(validationErrs))
	code := types.ErrCodeValidationMissingField
	for _, fe := range validationErrs {
		name := snakeCase(fe.Field())
		fields[name] = validationMessage(fe)
		if c := codeForTag(fe.Tag()); c != "" {
			code = c
		}
	}

	return types.NewAppErrorWithDetails(code, "request validation failed", nil, map[string]any{
		"fields": fields,
	})
}

// codeForTag maps a validation tag to the most specific error code.
// The most specific failing tag wins when multiple fields fail.
func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "email":
		return types.ErrCodeValidationInvalidEmail
	case "hexcolor":
		return types.ErrCodeValidationInvalidColor
	case "platform":
		return types.ErrCodeValidationInvalidPlatform
	case "required":
		return types.ErrCodeValidationMissingField
	}
	return ""
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "must be a valid email address"
	case "hexcolor":
		return "must be a hex color like #1A2B3C"
	case "platform":
		return "unsupported platform"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	}
	return "failed validation rule: " + fe.Tag()
}

// snakeCase converts a Go field name (CamelCase) to snake_case for error
// payloads, matching the JSON field naming used across the API.
func snakeCase(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			// Underscore before a new word, but not inside an acronym (ID, URL).
			if i > 0 && !(runes[i-1] >= 'A' && runes[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
