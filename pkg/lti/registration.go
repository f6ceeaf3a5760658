// pkg/lti/registration.go
package lti

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultAlgorithm signs tool messages when a registration names none.
const DefaultAlgorithm = "RS256"

// Registration is the tool's configuration for one platform client.
// Stores build it on lookup; callers treat it as a value.
type Registration struct {
	Issuer       string
	ClientID     string
	KeySetURL    string
	AuthLoginURL string
	AuthTokenURL string
	// AuthServer is the audience for service token requests. Empty means
	// AuthTokenURL.
	AuthServer string
	// ToolPrivateKey is PEM encoded.
	ToolPrivateKey []byte
	KID            string
	Algorithm      string
}

// KeyID returns the explicit key id, or a stable hash of issuer and client id.
func (r Registration) KeyID() (string, error) {
	if r.KID != "" {
		return r.KID, nil
	}
	if r.Issuer == "" || r.ClientID == "" {
		return "", newError(KindConfiguration, "kid or issuer and client_id must be set", nil)
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(r.Issuer + r.ClientID)))
	return hex.EncodeToString(sum[:]), nil
}

func (r Registration) AuthorizationServer() string {
	if r.AuthServer != "" {
		return r.AuthServer
	}
	return r.AuthTokenURL
}

func (r Registration) SigningAlgorithm() string {
	if r.Algorithm != "" {
		return r.Algorithm
	}
	return DefaultAlgorithm
}

// Deployment is a platform side installation of a registration. The core
// only checks that it exists.
type Deployment struct {
	DeploymentID string
}
