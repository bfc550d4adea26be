package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// ValidatePlot checks the plot fields callers are allowed to set.
func ValidatePlot(p Plot) error {
	return structError(validate.Struct(p), "")
}

// ValidateTree checks a single tree.
func ValidateTree(t Tree) error {
	return structError(validate.Struct(t), "")
}

// ValidateTrees checks every tree, naming the offending element as trees[i].field.
func ValidateTrees(trees []Tree) error {
	for i, t := range trees {
		if err := structError(validate.Struct(t), fmt.Sprintf("trees[%d].", i)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateMeasurement checks the temperature range and non-negative precipitation.
func ValidateMeasurement(m Measurement) error {
	return structError(validate.Struct(m), "")
}

// structError converts the first validator failure into a ValidationError.
func structError(err error, prefix string) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: strings.TrimSuffix(prefix, "."), Message: err.Error()}
	}
	fe := fieldErrs[0]
	return &ValidationError{
		Field:   prefix + fe.Field(),
		Value:   fe.Value(),
		Message: describe(fe),
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return "must not be blank"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
