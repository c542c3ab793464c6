package persona

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/facet/internal/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names so field errors match what callers sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateInput checks an extraction input against the input limits.
// Returns a VALIDATION_ERROR carrying one FieldError per failed rule.
func ValidateInput(in Input) error {
	if len(in.TextBlocks) == 0 && len(in.Links) == 0 {
		return errors.NewValidation("at least one text block or link is required")
	}

	fields := structErrors(in)
	for i, block := range in.TextBlocks {
		if strings.TrimSpace(block) == "" {
			fields = append(fields, errors.FieldError{
				Field:   fmt.Sprintf("textBlocks[%d]", i),
				Message: "must not be blank",
			})
		}
	}

	if len(fields) > 0 {
		return errors.NewValidation("invalid extraction input", fields...)
	}
	return nil
}

// ValidatePersona checks a persona against the save limits.
func ValidatePersona(p *Persona) error {
	if p == nil {
		return errors.NewValidation("persona is required")
	}
	if fields := structErrors(p); len(fields) > 0 {
		return errors.NewValidation("invalid persona", fields...)
	}
	return nil
}

// Struct validates s with the package validator and converts any failures.
// Exported for transports that validate their own request types.
func Struct(s any) []errors.FieldError {
	return structErrors(s)
}

func structErrors(s any) []errors.FieldError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return []errors.FieldError{{Field: "", Message: err.Error()}}
	}

	fields := make([]errors.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, errors.FieldError{
			Field:   fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return fields
}

// fieldPath is the namespace without the root type, e.g. history[2].content.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		switch fe.Kind() {
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		case reflect.String:
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		switch fe.Kind() {
		case reflect.Slice, reflect.Array:
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		case reflect.String:
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "http_url":
		return "must be a valid http(s) URL"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
