package validator

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	ProductCodeRegex = regexp.MustCompile("^[A-Za-z0-9_-]+$")
)

// Validator is a validator that validates the given struct.
type Validator interface {
	// Validate validates the given struct
	Validate(s any) error
}

type DefaultValidator struct {
	v *validator.Validate
}

// NewDefaultValidator creates a new default validator.
// It returns a new DefaultValidator and an error if the validator registration fails.
func NewDefaultValidator() (*DefaultValidator, error) {
	v := validator.New()

	// decimal.Decimal is validated by value so numeric tags (gte, lte) apply to it.
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})

	if err := v.RegisterValidation("productcode", validateProductCode); err != nil {
		return nil, fmt.Errorf("register productcode validator: %w", err)
	}

	if err := v.RegisterValidation("scale2", validateScale2); err != nil {
		return nil, fmt.Errorf("register scale2 validator: %w", err)
	}

	return &DefaultValidator{v: v}, nil
}

func (v DefaultValidator) Validate(s any) error {
	return v.v.Struct(s)
}

// IsValidationError checks if the given error is a validation error
func IsValidationError(err error) bool {
	_, ok := err.(validator.ValidationErrors)
	return ok
}

func ValidationErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "uuid":
		return "must be a valid UUID"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters long", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "productcode":
		return "must contain only letters, digits, '-' and '_'"
	case "scale2":
		return "must have at most 2 fractional digits"
	default:
		return "is invalid"
	}
}

func decimalValue(field reflect.Value) any {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return nil
}

func validateProductCode(fl validator.FieldLevel) bool {
	return ProductCodeRegex.MatchString(fl.Field().String())
}

// validateScale2 runs after the custom type func, so it only sees the float
// value; the exact check is done on the parent field instead.
func validateScale2(fl validator.FieldLevel) bool {
	d, ok := fieldDecimal(fl)
	if !ok {
		return false
	}
	return d.Equal(d.Truncate(2))
}

func fieldDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	parent := fl.Parent()
	if parent.Kind() == reflect.Ptr {
		parent = parent.Elem()
	}
	f := parent.FieldByName(fl.StructFieldName())
	if !f.IsValid() {
		return decimal.Decimal{}, false
	}
	if f.Kind() == reflect.Ptr {
		if f.IsNil() {
			return decimal.Decimal{}, true
		}
		f = f.Elem()
	}
	d, ok := f.Interface().(decimal.Decimal)
	return d, ok
}
