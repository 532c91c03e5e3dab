package tap

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	cardExpiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/(\d{2}|\d{4})$`)
	validate          = newValidator()
)

// Validate ensures the finalize payload carries a complete destination and
// buyer before a cart is quoted.
func (r CartFinalizeRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// Validate ensures all card fields are present and well-formed. Luhn and
// expiry-in-the-future checks belong to the card processor, not the schema.
func (r CartFulfillRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// Validate ensures the delegated checkout carries its token and agent.
func (r DelegatedCheckoutRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("card_expiry", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return cardExpiryPattern.MatchString(value)
	}); err != nil {
		panic(err)
	}

	return v
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	fieldPath := jsonPath(first)
	message := validationMessage(first)
	return fmt.Errorf("%s %s", fieldPath, message)
}

func jsonPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if idx := strings.Index(path, "."); idx >= 0 {
		path = path[idx+1:]
	}
	if path == "" {
		return fe.Field()
	}
	return path
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must contain digits only"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("cannot exceed %s characters", fe.Param())
	case "card_expiry":
		return "must be formatted MM/YY or MM/YYYY"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
