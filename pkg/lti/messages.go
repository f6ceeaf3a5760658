// pkg/lti/messages.go
package lti

import (
	"errors"
	"sync"
)

// MessageValidator checks the claims of one LTI message type.
type MessageValidator interface {
	// CanValidate reports whether this validator owns the message.
	CanValidate(claims map[string]any) bool
	// Validate returns nil when the claims are acceptable.
	Validate(claims map[string]any) error
}

// ValidatorRegistry dispatches a message to exactly one validator.
type ValidatorRegistry struct {
	mu         sync.RWMutex
	validators []MessageValidator
}

// NewValidatorRegistry returns a registry holding the built in resource link
// and deep linking validators followed by extra.
func NewValidatorRegistry(extra ...MessageValidator) *ValidatorRegistry {
	r := &ValidatorRegistry{
		validators: []MessageValidator{ResourceLinkValidator{}, DeepLinkValidator{}},
	}
	r.validators = append(r.validators, extra...)
	return r
}

// Register adds a validator.
func (r *ValidatorRegistry) Register(v MessageValidator) {
	r.mu.Lock()
	r.validators = append(r.validators, v)
	r.mu.Unlock()
}

// Validate finds the single applicable validator and runs it.
func (r *ValidatorRegistry) Validate(claims map[string]any) error {
	r.mu.RLock()
	var match MessageValidator
	for _, v := range r.validators {
		if !v.CanValidate(claims) {
			continue
		}
		if match != nil {
			r.mu.RUnlock()
			return newError(KindMessageValidation, "Validator conflict", nil)
		}
		match = v
	}
	r.mu.RUnlock()

	if match == nil {
		return newError(KindMessageValidation, "Unrecognized message type.", nil)
	}
	if err := match.Validate(claims); err != nil {
		var le *Error
		if errors.As(err, &le) && le.Kind == KindMessageValidation {
			return err
		}
		return newError(KindMessageValidation, err.Error(), nil)
	}
	return nil
}

// ResourceLinkValidator handles LtiResourceLinkRequest.
type ResourceLinkValidator struct{}

func (ResourceLinkValidator) CanValidate(claims map[string]any) bool {
	return asString(claims[ClaimMessageType]) == MessageResourceLink
}

func (ResourceLinkValidator) Validate(claims map[string]any) error {
	if asString(claims[ClaimVersion]) != Version13 {
		return invalidMessage("Incorrect version, expected 1.3.0")
	}
	if empty(claims[ClaimRoles]) {
		return invalidMessage("Missing Roles Claim")
	}
	if asString(asMap(claims[ClaimResourceLink])["id"]) == "" {
		return invalidMessage("Missing Resource Link Id")
	}
	return nil
}

// DeepLinkValidator handles LtiDeepLinkingRequest.
type DeepLinkValidator struct{}

func (DeepLinkValidator) CanValidate(claims map[string]any) bool {
	return asString(claims[ClaimMessageType]) == MessageDeepLinking
}

func (DeepLinkValidator) Validate(claims map[string]any) error {
	if asString(claims["sub"]) == "" {
		return invalidMessage("Must have a user (sub)")
	}
	if asString(claims[ClaimVersion]) != Version13 {
		return invalidMessage("Incorrect version, expected 1.3.0")
	}
	if empty(claims[ClaimRoles]) {
		return invalidMessage("Missing Roles Claim")
	}
	settings := asMap(claims[ClaimDeepLinking])
	if settings == nil {
		return invalidMessage("Missing Deep Linking Settings")
	}
	if asString(settings["deep_link_return_url"]) == "" {
		return invalidMessage("Missing Deep Linking Return URL")
	}
	if !contains(asStrings(settings["accept_types"]), ContentTypeResourceLink) {
		return invalidMessage("Must support resource link placement types")
	}
	if len(asStrings(settings["accept_presentation_document_targets"])) == 0 {
		return invalidMessage("Must support a presentation type")
	}
	return nil
}

func invalidMessage(msg string) error {
	return newError(KindMessageValidation, msg, nil)
}
