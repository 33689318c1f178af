// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

// Package validation wraps go-playground/validator v10 behind a shared
// instance with FleetMan's custom tags registered.
//
// The one custom tag is "internalpath": an action URL attached to a
// notification must be a relative in-app navigation target, never an
// external link the client would follow off-site.
//
//	type publishRequest struct {
//	    Message   string `validate:"required,max=2000"`
//	    ActionURL string `validate:"omitempty,internalpath"`
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// internalPathPattern accepts a single leading "/" followed by URL path
// characters. "//host" is scheme-relative and therefore external;
// "javascript:" and friends fail on the missing slash.
var internalPathPattern = regexp.MustCompile(`^/[A-Za-z0-9._~!$&'()*+,;=:@%/?-]*$`)

// IsInternalPath reports whether s is a safe in-app navigation path.
func IsInternalPath(s string) bool {
	return !strings.HasPrefix(s, "//") && internalPathPattern.MatchString(s)
}

func sharedValidator() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())

		// Registration only errors on an empty tag name.
		_ = instance.RegisterValidation("internalpath", func(fl validator.FieldLevel) bool {
			return IsInternalPath(fl.Field().String())
		})
	})
	return instance
}

// ValidationError is one failed field.
type ValidationError struct {
	field   string
	tag     string
	value   interface{}
	message string
}

func (e *ValidationError) Error() string { return e.message }

// RequestValidationError collects every failed field of one struct.
type RequestValidationError struct {
	errors []ValidationError
}

// Errors returns the individual field failures.
func (ve *RequestValidationError) Errors() []ValidationError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(ve.errors))
	for i := range ve.errors {
		parts[i] = ve.errors[i].message
	}
	return strings.Join(parts, "; ")
}

// APIError mirrors the api package's error shape. Declared here so the api
// package can depend on validation without a cycle.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError renders the failures in the VALIDATION_ERROR response format.
func (ve *RequestValidationError) ToAPIError() *APIError {
	switch len(ve.errors) {
	case 0:
		return &APIError{Code: "VALIDATION_ERROR", Message: "Validation failed"}
	case 1:
		fieldErr := ve.errors[0]
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: fieldErr.message,
			Details: map[string]interface{}{
				"field": fieldErr.field,
				"tag":   fieldErr.tag,
				"value": fieldErr.value,
			},
		}
	default:
		fields := make([]map[string]interface{}, len(ve.errors))
		parts := make([]string, len(ve.errors))
		for i, fieldErr := range ve.errors {
			fields[i] = map[string]interface{}{
				"field":   fieldErr.field,
				"tag":     fieldErr.tag,
				"message": fieldErr.message,
			}
			parts[i] = fieldErr.field + ": " + fieldErr.message
		}
		return &APIError{
			Code:    "VALIDATION_ERROR",
			Message: strings.Join(parts, "; "),
			Details: map[string]interface{}{"fields": fields},
		}
	}
}

// ValidateStruct validates s against its validate tags. Returns nil when
// everything passes.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := sharedValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// validator.Struct only returns non-ValidationErrors for broken
		// input like a nil pointer; surface it as a single failure.
		return &RequestValidationError{errors: []ValidationError{
			{field: "unknown", tag: "unknown", message: err.Error()},
		}}
	}

	collected := make([]ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		collected[i] = ValidationError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			value:   fe.Value(),
			message: describe(fe),
		}
	}
	return &RequestValidationError{errors: collected}
}

// describe turns a field error into the message clients see.
func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "uuid":
		return field + " must be a valid UUID"
	case "datetime":
		return field + " must be a valid RFC3339 timestamp"
	case "internalpath":
		return field + " must be a relative in-app path starting with /"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "gte", "lte", "gt", "lt":
		comparisons := map[string]string{
			"gte": "at least", "lte": "at most",
			"gt": "greater than", "lt": "less than",
		}
		return fmt.Sprintf("%s must be %s %s", field, comparisons[fe.Tag()], param)
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
