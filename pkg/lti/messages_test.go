package lti

import (
	"errors"
	"testing"
)

func deepLinkClaims() map[string]any {
	return map[string]any{
		"sub":            "user-1",
		ClaimMessageType: MessageDeepLinking,
		ClaimVersion:     Version13,
		ClaimRoles:       []any{"Instructor"},
		ClaimDeepLinking: map[string]any{
			"deep_link_return_url":                 "https://platform.example.com/dl/return",
			"accept_types":                         []any{"ltiResourceLink", "link"},
			"accept_presentation_document_targets": []any{"iframe", "window"},
			"data":                                 "opaque",
		},
	}
}

func TestResourceLinkValidator(t *testing.T) {
	v := ResourceLinkValidator{}
	cases := []struct {
		name   string
		mutate func(map[string]any)
		msg    string
	}{
		{"valid", func(map[string]any) {}, ""},
		{"version", func(c map[string]any) { c[ClaimVersion] = "1.0" }, "Incorrect version, expected 1.3.0"},
		{"no roles", func(c map[string]any) { delete(c, ClaimRoles) }, "Missing Roles Claim"},
		{"empty roles", func(c map[string]any) { c[ClaimRoles] = []any{} }, "Missing Roles Claim"},
		{"no resource link", func(c map[string]any) { delete(c, ClaimResourceLink) }, "Missing Resource Link Id"},
		{"empty id", func(c map[string]any) { c[ClaimResourceLink] = map[string]any{"id": ""} }, "Missing Resource Link Id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := resourceLinkClaims("n")
			tc.mutate(c)
			if !v.CanValidate(c) {
				t.Fatalf("CanValidate = false")
			}
			err := v.Validate(c)
			if tc.msg == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			wantLTIError(t, err, KindMessageValidation, tc.msg)
		})
	}
	if v.CanValidate(deepLinkClaims()) {
		t.Fatalf("resource link validator claimed a deep link request")
	}
}

func TestDeepLinkValidator(t *testing.T) {
	v := DeepLinkValidator{}
	settings := func(c map[string]any) map[string]any { return c[ClaimDeepLinking].(map[string]any) }
	cases := []struct {
		name   string
		mutate func(map[string]any)
		msg    string
	}{
		{"valid", func(map[string]any) {}, ""},
		{"no sub", func(c map[string]any) { delete(c, "sub") }, "Must have a user (sub)"},
		{"version", func(c map[string]any) { c[ClaimVersion] = "1.1" }, "Incorrect version, expected 1.3.0"},
		{"no roles", func(c map[string]any) { delete(c, ClaimRoles) }, "Missing Roles Claim"},
		{"no settings", func(c map[string]any) { delete(c, ClaimDeepLinking) }, "Missing Deep Linking Settings"},
		{"no return url", func(c map[string]any) { delete(settings(c), "deep_link_return_url") }, "Missing Deep Linking Return URL"},
		{"no resource link type", func(c map[string]any) { settings(c)["accept_types"] = []any{"file"} }, "Must support resource link placement types"},
		{"no targets", func(c map[string]any) { settings(c)["accept_presentation_document_targets"] = []any{} }, "Must support a presentation type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := deepLinkClaims()
			tc.mutate(c)
			err := v.Validate(c)
			if tc.msg == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			wantLTIError(t, err, KindMessageValidation, tc.msg)
		})
	}
}

type proctoringValidator struct{ err error }

func (proctoringValidator) CanValidate(c map[string]any) bool {
	return asString(c[ClaimMessageType]) == "LtiStartProctoring"
}

func (p proctoringValidator) Validate(map[string]any) error { return p.err }

func TestRegistryCustomValidator(t *testing.T) {
	claims := map[string]any{ClaimMessageType: "LtiStartProctoring"}

	r := NewValidatorRegistry()
	wantLTIError(t, r.Validate(claims), KindMessageValidation, "Unrecognized message type.")

	r.Register(proctoringValidator{})
	if err := r.Validate(claims); err != nil {
		t.Fatalf("custom validator: %v", err)
	}

	r = NewValidatorRegistry(proctoringValidator{err: errors.New("Missing attempt number")})
	wantLTIError(t, r.Validate(claims), KindMessageValidation, "Missing attempt number")

	r.Register(proctoringValidator{})
	wantLTIError(t, r.Validate(claims), KindMessageValidation, "Validator conflict")
}
