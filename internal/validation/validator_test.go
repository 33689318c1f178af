// FleetMan - Fleet Maintenance Tracking and Real-Time Notifications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetman

package validation

import (
	"strings"
	"testing"
)

func TestIsInternalPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/", true},
		{"/machines/42", true},
		{"/machines/42?tab=history", true},
		{"/a/b-c/d_e.f", true},
		{"", false},
		{"machines/42", false},
		{"//evil.example.com", false},
		{"https://evil.example.com", false},
		{"javascript:alert(1)", false},
		{"/path with spaces", false},
		{"/ok/%20encoded", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsInternalPath(tt.path); got != tt.want {
				t.Errorf("IsInternalPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateStructInternalPath(t *testing.T) {
	type req struct {
		ActionURL string `validate:"omitempty,internalpath"`
	}

	if err := ValidateStruct(&req{ActionURL: "/machines/7"}); err != nil {
		t.Errorf("valid path rejected: %v", err)
	}
	if err := ValidateStruct(&req{ActionURL: ""}); err != nil {
		t.Errorf("omitempty should allow empty: %v", err)
	}

	err := ValidateStruct(&req{ActionURL: "https://x.test/y"})
	if err == nil {
		t.Fatal("external URL should fail validation")
	}
	apiErr := err.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "in-app path") {
		t.Errorf("Message = %q, want internalpath template", apiErr.Message)
	}
}

func TestValidateStructRequiredAndOneof(t *testing.T) {
	type req struct {
		Message string `validate:"required"`
		Variant string `validate:"omitempty,oneof=success warning error info"`
	}

	err := ValidateStruct(&req{Message: "", Variant: "bogus"})
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if len(err.Errors()) != 2 {
		t.Fatalf("got %d errors, want 2", len(err.Errors()))
	}

	apiErr := err.ToAPIError()
	if apiErr.Details["fields"] == nil {
		t.Error("multi-error APIError should carry fields detail")
	}
}

func TestValidateStructPassthrough(t *testing.T) {
	type req struct {
		Count int `validate:"min=1,max=10"`
	}

	if err := ValidateStruct(&req{Count: 5}); err != nil {
		t.Errorf("valid struct rejected: %v", err)
	}

	err := ValidateStruct(&req{Count: 99})
	if err == nil {
		t.Fatal("expected max violation")
	}
	if !strings.Contains(err.Error(), "at most 10") {
		t.Errorf("message = %q, want max template", err.Error())
	}
}
