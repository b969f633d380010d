// Package validation runs go-playground/validator over request structs and
// turns its failures into VALIDATION errors keyed by JSON field path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"partsledger/internal/apperr"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			switch name {
			case "-":
				return ""
			case "":
				return field.Name
			}
			return name
		})
		validate = v
	})
	return validate
}

// Struct validates value against its `validate` tags.
func Struct(value any) error {
	return translate(instance().Struct(value), "")
}

// Var validates a single value that has no struct to carry its tags.
func Var(name string, value any, tag string) error {
	return translate(instance().Var(value, tag), name)
}

// Merge folds several VALIDATION errors into one; nil inputs are skipped.
// A non-validation error is returned as is.
func Merge(errs ...error) error {
	fields := map[string]string{}
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, apperr.ErrValidation) {
			return err
		}
		for key, msg := range apperr.FieldsOf(err) {
			if _, exists := fields[key]; !exists {
				fields[key] = msg
			}
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields)
}

func translate(err error, name string) error {
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return fmt.Errorf("validation misuse: %w", err)
	}
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return err
	}

	fields := make(map[string]string, len(failures))
	for _, failure := range failures {
		key := fieldPath(failure.Namespace())
		if name != "" {
			key = name
		}
		if _, exists := fields[key]; !exists {
			fields[key] = message(failure)
		}
	}
	return apperr.Validation(fields)
}

// fieldPath drops the struct type name validator puts in front of the namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func message(fe validator.FieldError) string {
	unit := ""
	switch fe.Kind() {
	case reflect.String:
		unit = " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		unit = " items"
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param() + unit
	case "max":
		return "must be at most " + fe.Param() + unit
	case "len":
		return "must be exactly " + fe.Param() + unit
	case "oneof":
		return "must be one of: " + strings.Join(strings.Fields(fe.Param()), ", ")
	case "email":
		return "must be a valid email address"
	case "numeric":
		return "must contain digits only"
	case "datauri|base64", "base64", "datauri":
		return "must be base64 encoded data"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
