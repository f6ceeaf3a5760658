// pkg/lti/stores.go
package lti

import (
	"context"
	"time"
)

// RegistrationStore resolves platform configuration. Both methods return an
// error wrapping ErrNotFound when nothing matches. An empty clientID means
// "the registration for this issuer".
type RegistrationStore interface {
	FindRegistration(ctx context.Context, issuer, clientID string) (Registration, error)
	FindDeployment(ctx context.Context, issuer, deploymentID string) (Deployment, error)
}

// LaunchStateStore keeps validated launches and issued nonces.
type LaunchStateStore interface {
	GetLaunchClaims(ctx context.Context, launchID string) (map[string]any, error)
	PutLaunchClaims(ctx context.Context, launchID string, claims map[string]any) error
	RecordNonce(ctx context.Context, nonce string) error
	HasNonce(ctx context.Context, nonce string) (bool, error)
}

// NonceConsumer is implemented by stores that can check and remove a nonce
// in one atomic step. The validator checks HasNonce at step 3 and consumes
// the nonce once the signature verifies.
type NonceConsumer interface {
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
}

// StateTransport round trips the login state through the user agent.
type StateTransport interface {
	ReadState(key string) (string, bool)
	WriteState(key, value string, ttl time.Duration) error
}
