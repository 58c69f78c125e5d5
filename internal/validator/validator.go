package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ErrRequired     = "is required"
	ErrMinValue     = "must be at least %s"
	ErrMaxValue     = "must be at most %s"
	ErrMinItems     = "must contain at least %s item(s)"
	ErrMaxItems     = "must contain at most %s item(s)"
	ErrDate         = "must be a date in YYYY-MM-DD format"
	ErrInvalidValue = "is invalid"

	DateLayout = "2006-01-02"
)

func NewValidator() *validator.Validate {
	validator := validator.New(validator.WithRequiredStructEnabled())

	validator.RegisterTagNameFunc(jsonFieldName)
	validator.RegisterValidation("date_only", validateDateOnly)

	return validator
}

// jsonFieldName reports fields under the name clients send them with.
func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return field.Name
	}

	return name
}

func validateDateOnly(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// ValidationMessage converts validator errors into readable messages
func ValidationMessage(err validator.FieldError) string {
	isCollection := err.Kind() == reflect.Slice || err.Kind() == reflect.Array || err.Kind() == reflect.Map

	switch err.Tag() {
	case "required":
		return ErrRequired
	case "min", "gte":
		if isCollection {
			return fmt.Sprintf(ErrMinItems, err.Param())
		}
		return fmt.Sprintf(ErrMinValue, err.Param())
	case "max", "lte":
		if isCollection {
			return fmt.Sprintf(ErrMaxItems, err.Param())
		}
		return fmt.Sprintf(ErrMaxValue, err.Param())
	case "date_only":
		return ErrDate
	default:
		return ErrInvalidValue
	}
}

// FieldErrors flattens a validation failure into field name -> message. It
// returns nil when err does not come from the validator.
func FieldErrors(err error) map[string]string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	fields := make(map[string]string, len(validationErrs))
	for _, fe := range validationErrs {
		fields[fe.Field()] = ValidationMessage(fe)
	}

	return fields
}
