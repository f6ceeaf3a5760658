// pkg/lti/launch.go
package lti

import "strings"

// Launch is a validated launch. It is either produced by Validator.Validate
// or rehydrated by Validator.FromCache.
type Launch struct {
	id           string
	header       map[string]any
	claims       map[string]any
	registration Registration
}

// ID is the handle under which the launch claims are cached.
func (l *Launch) ID() string { return l.id }

// Header is nil for launches rehydrated from cache.
func (l *Launch) Header() map[string]any { return l.header }

func (l *Launch) Claims() map[string]any { return l.claims }

func (l *Launch) Registration() Registration { return l.registration }

func (l *Launch) MessageType() string { return asString(l.claims[ClaimMessageType]) }

func (l *Launch) DeploymentID() string { return asString(l.claims[ClaimDeploymentID]) }

func (l *Launch) Subject() string { return asString(l.claims["sub"]) }

func (l *Launch) Roles() []string { return asStrings(l.claims[ClaimRoles]) }

// Role URIs from the LIS vocabulary.
const (
	RoleInstructor       = "http://purl.imsglobal.org/vocab/lis/v2/membership#Instructor"
	RoleContentDeveloper = "http://purl.imsglobal.org/vocab/lis/v2/membership#ContentDeveloper"
	RoleContextAdmin     = "http://purl.imsglobal.org/vocab/lis/v2/membership#Administrator"
	RoleLearner          = "http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"
	RoleSystemAdmin      = "http://purl.imsglobal.org/vocab/lis/v2/system/person#Administrator"
	RoleInstitutionAdmin = "http://purl.imsglobal.org/vocab/lis/v2/institution/person#Administrator"

	instructorSubRolePrefix = "http://purl.imsglobal.org/vocab/lis/v2/membership/Instructor#"
)

// IsStaff reports whether the launching user teaches or administers the
// context: instructor (including sub roles such as TeachingAssistant),
// content developer, or a context, institution or system administrator.
func (l *Launch) IsStaff() bool {
	for _, r := range l.Roles() {
		switch r {
		case RoleInstructor, RoleContentDeveloper, RoleContextAdmin, RoleSystemAdmin, RoleInstitutionAdmin:
			return true
		}
		if strings.HasPrefix(r, instructorSubRolePrefix) {
			return true
		}
	}
	return false
}

func (l *Launch) TargetLinkURI() string { return asString(l.claims[ClaimTargetLinkURI]) }

func (l *Launch) ResourceLinkID() string {
	return asString(asMap(l.claims[ClaimResourceLink])["id"])
}

func (l *Launch) ContextID() string {
	return asString(asMap(l.claims[ClaimContext])["id"])
}

// Custom returns the custom parameters, stringified.
func (l *Launch) Custom() map[string]string { return toStringMap(l.claims[ClaimCustom]) }

func (l *Launch) IsResourceLaunch() bool { return l.MessageType() == MessageResourceLink }

func (l *Launch) IsDeepLinkLaunch() bool { return l.MessageType() == MessageDeepLinking }

func (l *Launch) IsSubmissionReviewLaunch() bool {
	return l.MessageType() == MessageSubmissionReview
}

// AGSEndpoint is the assignment and grade services claim.
type AGSEndpoint struct {
	Scope     []string
	LineItems string
	LineItem  string
}

// NRPSEndpoint is the names and roles provisioning services claim.
type NRPSEndpoint struct {
	ContextMembershipsURL string
	ServiceVersions       []string
}

// GSEndpoint is the course groups service claim.
type GSEndpoint struct {
	Scope               []string
	ContextGroupsURL    string
	ContextGroupSetsURL string
	ServiceVersions     []string
}

func (l *Launch) HasAGS() bool { return asMap(l.claims[ClaimAGSEndpoint]) != nil }

func (l *Launch) HasNRPS() bool {
	return asString(asMap(l.claims[ClaimNRPSService])["context_memberships_url"]) != ""
}

func (l *Launch) HasGS() bool {
	return asString(asMap(l.claims[ClaimGroupsService])["context_groups_url"]) != ""
}

func (l *Launch) AGS() (AGSEndpoint, bool) {
	m := asMap(l.claims[ClaimAGSEndpoint])
	if m == nil {
		return AGSEndpoint{}, false
	}
	return AGSEndpoint{
		Scope:     asStrings(m["scope"]),
		LineItems: asString(m["lineitems"]),
		LineItem:  asString(m["lineitem"]),
	}, true
}

func (l *Launch) NRPS() (NRPSEndpoint, bool) {
	if !l.HasNRPS() {
		return NRPSEndpoint{}, false
	}
	m := asMap(l.claims[ClaimNRPSService])
	return NRPSEndpoint{
		ContextMembershipsURL: asString(m["context_memberships_url"]),
		ServiceVersions:       asStrings(m["service_versions"]),
	}, true
}

func (l *Launch) GS() (GSEndpoint, bool) {
	if !l.HasGS() {
		return GSEndpoint{}, false
	}
	m := asMap(l.claims[ClaimGroupsService])
	return GSEndpoint{
		Scope:               asStrings(m["scope"]),
		ContextGroupsURL:    asString(m["context_groups_url"]),
		ContextGroupSetsURL: asString(m["context_group_sets_url"]),
		ServiceVersions:     asStrings(m["service_versions"]),
	}, true
}

// DeepLink returns the response builder for a deep linking launch.
func (l *Launch) DeepLink() (*DeepLink, error) {
	settings := asMap(l.claims[ClaimDeepLinking])
	if settings == nil {
		return nil, newError(KindMessageValidation, "Missing Deep Linking Settings", nil)
	}
	return NewDeepLink(l.registration, l.DeploymentID(), ParseDeepLinkSettings(settings)), nil
}
