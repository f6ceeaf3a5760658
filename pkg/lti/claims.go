// pkg/lti/claims.go
package lti

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Claim names used by LTI 1.3 messages.
const (
	ClaimMessageType    = "https://purl.imsglobal.org/spec/lti/claim/message_type"
	ClaimVersion        = "https://purl.imsglobal.org/spec/lti/claim/version"
	ClaimDeploymentID   = "https://purl.imsglobal.org/spec/lti/claim/deployment_id"
	ClaimRoles          = "https://purl.imsglobal.org/spec/lti/claim/roles"
	ClaimResourceLink   = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	ClaimTargetLinkURI  = "https://purl.imsglobal.org/spec/lti/claim/target_link_uri"
	ClaimContext        = "https://purl.imsglobal.org/spec/lti/claim/context"
	ClaimCustom         = "https://purl.imsglobal.org/spec/lti/claim/custom"
	ClaimDeepLinking    = "https://purl.imsglobal.org/spec/lti-dl/claim/deep_linking_settings"
	ClaimContentItems   = "https://purl.imsglobal.org/spec/lti-dl/claim/content_items"
	ClaimDeepLinkData   = "https://purl.imsglobal.org/spec/lti-dl/claim/data"
	ClaimAGSEndpoint    = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
	ClaimNRPSService    = "https://purl.imsglobal.org/spec/lti-nrps/claim/namesroleservice"
	ClaimGroupsService  = "https://purl.imsglobal.org/spec/lti-gs/claim/groupsservice"
	ClaimForUser        = "https://purl.imsglobal.org/spec/lti/claim/for_user"
	ClaimLaunchPresence = "https://purl.imsglobal.org/spec/lti/claim/launch_presentation"
)

// Message types and fixed values.
const (
	MessageResourceLink     = "LtiResourceLinkRequest"
	MessageDeepLinking      = "LtiDeepLinkingRequest"
	MessageDeepLinkResponse = "LtiDeepLinkingResponse"
	MessageSubmissionReview = "LtiSubmissionReviewRequest"

	Version13 = "1.3.0"

	ContentTypeResourceLink = "ltiResourceLink"
)

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case []any:
		if len(t) > 0 {
			return asString(t[0])
		}
	case []string:
		if len(t) > 0 {
			return t[0]
		}
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asStrings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if t != "" {
			return []string{t}
		}
	}
	return nil
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}

func toStringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok || m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s := asString(v); s != "" {
			out[k] = s
		}
	}
	return out
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

// empty reports whether a decoded claim value carries nothing.
func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
