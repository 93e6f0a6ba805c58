package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var methodNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Validator defines an interface for validation operations
type Validator interface {
	// ValidateStruct validates a struct against validation tags
	ValidateStruct(v interface{}) error

	// RegisterCustomValidation adds a custom validation function
	RegisterCustomValidation(tag string, fn validator.Func) error
}

// defaultValidator implements the Validator interface
type defaultValidator struct {
	validate *validator.Validate
}

// NewValidator creates a new instance of the validator with the "method" tag
// registered.
func NewValidator() Validator {
	v := &defaultValidator{
		validate: validator.New(),
	}
	_ = v.RegisterCustomValidation("method", func(fl validator.FieldLevel) bool {
		return methodNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateStruct validates a struct against validation tags
func (v *defaultValidator) ValidateStruct(s interface{}) error {
	return v.validate.Struct(s)
}

// RegisterCustomValidation adds a custom validation function
func (v *defaultValidator) RegisterCustomValidation(tag string, fn validator.Func) error {
	return v.validate.RegisterValidation(tag, fn)
}

var defaultInstance = NewValidator()

// Validate validates v with the shared validator
func Validate(v interface{}) error {
	return defaultInstance.ValidateStruct(v)
}

// ValidationMessage flattens validator errors into one readable line. Other
// errors are returned as their Error() text.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
