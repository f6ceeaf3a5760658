// pkg/lti/validator.go
package lti

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/google/uuid"
)

/*
Launch validation

An inbound launch is a form POST carrying state and id_token. Validate runs
the following steps in order and stops at the first failure. Nothing is
cached unless every step passes.

 1. state       the echoed state matches the one stored at login
 2. format      id_token is present and has three segments
 3. nonce       the nonce was issued by this tool (see NonceMode)
 4. registration iss + aud resolve to a registration
 5. signature   the platform JWKS holds the header kid and it verifies;
                a single use nonce is spent only after this succeeds
 6. deployment  the deployment id resolves for the issuer
 7. message     exactly one message validator accepts the claims
 8. cache       claims are stored under the launch id
*/

// LaunchIDPrefix prefixes every generated launch id.
const LaunchIDPrefix = "lti1p3_launch_"

// NonceMode selects how step 3 treats an unknown nonce.
type NonceMode int

const (
	// NonceEnforce rejects launches whose nonce was not issued or was
	// already used.
	NonceEnforce NonceMode = iota
	// NonceAdvisory logs the failure and continues.
	NonceAdvisory
)

// LaunchRequest is the launch form posted by the platform.
type LaunchRequest struct {
	State   string
	IDToken string
}

func LaunchRequestFromValues(v url.Values) LaunchRequest {
	return LaunchRequest{State: v.Get("state"), IDToken: v.Get("id_token")}
}

// Validator authenticates launches. It is safe for concurrent use; every
// call works on its own state.
type Validator struct {
	Registrations RegistrationStore
	LaunchStates  LaunchStateStore
	// KeySets defaults to an HTTPKeySetFetcher.
	KeySets KeySetFetcher
	// Messages defaults to NewValidatorRegistry().
	Messages  *ValidatorRegistry
	NonceMode NonceMode
	Logger    *slog.Logger
}

// Validate runs the launch pipeline for req.
func (v *Validator) Validate(ctx context.Context, transport StateTransport, req LaunchRequest) (*Launch, error) {
	run := &launchRun{
		v:         v,
		transport: transport,
		req:       req,
		launch:    &Launch{id: LaunchIDPrefix + uuid.NewString()},
	}
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"state", run.validateState},
		{"format", run.validateTokenFormat},
		{"nonce", run.validateNonce},
		{"registration", run.validateRegistration},
		{"signature", run.validateSignature},
		{"deployment", run.validateDeployment},
		{"message", run.validateMessage},
		{"cache", run.cacheLaunch},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			v.logger().WarnContext(ctx, "launch rejected", "step", s.name, "kind", KindOf(err), "err", err)
			return nil, err
		}
	}
	v.logger().InfoContext(ctx, "launch validated",
		"launch_id", run.launch.id,
		"iss", run.launch.registration.Issuer,
		"message_type", run.launch.MessageType())
	return run.launch, nil
}

// FromCache rebuilds a launch from stored claims. Only the registration is
// checked again; launchID must come from a trusted source.
func (v *Validator) FromCache(ctx context.Context, launchID string) (*Launch, error) {
	claims, err := v.LaunchStates.GetLaunchClaims(ctx, launchID)
	if err != nil {
		return nil, fmt.Errorf("lti: load launch %s: %w", launchID, err)
	}
	run := &launchRun{v: v, launch: &Launch{id: launchID, claims: claims}}
	if err := run.validateRegistration(ctx); err != nil {
		return nil, err
	}
	return run.launch, nil
}

type launchRun struct {
	v         *Validator
	transport StateTransport
	req       LaunchRequest
	launch    *Launch
}

func (r *launchRun) validateState(context.Context) error {
	if r.req.State == "" || r.transport == nil {
		return newError(KindNoStateFound, "State not found", nil)
	}
	expected, ok := r.transport.ReadState(StateKeyPrefix + r.req.State)
	if !ok || expected != r.req.State {
		return newError(KindNoStateFound, "State not found", nil)
	}
	return nil
}

func (r *launchRun) validateTokenFormat(context.Context) error {
	header, claims, err := DecodeUnverified(r.req.IDToken)
	if err != nil {
		return err
	}
	r.launch.header = header
	r.launch.claims = claims
	return nil
}

func (r *launchRun) validateNonce(ctx context.Context) error {
	nonce := asString(r.launch.claims["nonce"])
	var (
		ok  bool
		err error
	)
	if nonce != "" {
		ok, err = r.v.LaunchStates.HasNonce(ctx, nonce)
	}
	return r.nonceResult(ctx, nonce, ok, err)
}

// spendNonce consumes the nonce after the signature has verified.
func (r *launchRun) spendNonce(ctx context.Context) error {
	c, ok := r.v.LaunchStates.(NonceConsumer)
	if !ok {
		return nil
	}
	nonce := asString(r.launch.claims["nonce"])
	var (
		spent bool
		err   error
	)
	if nonce != "" {
		spent, err = c.ConsumeNonce(ctx, nonce)
	}
	return r.nonceResult(ctx, nonce, spent, err)
}

func (r *launchRun) nonceResult(ctx context.Context, nonce string, ok bool, err error) error {
	if ok && err == nil {
		return nil
	}
	if r.v.NonceMode == NonceAdvisory {
		r.v.logger().WarnContext(ctx, "nonce not recognised", "nonce", nonce, "err", err)
		return nil
	}
	return newError(KindTokenFormat, "Invalid Nonce", err)
}

func (r *launchRun) validateRegistration(ctx context.Context) error {
	claims := r.launch.claims
	iss := asString(claims["iss"])
	if iss == "" {
		return newError(KindRegistration, "Invalid issuer", nil)
	}
	clientID := asString(claims["aud"])
	if clientID == "" {
		return newError(KindRegistration, "Invalid client id", nil)
	}
	reg, err := r.v.Registrations.FindRegistration(ctx, iss, clientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(KindRegistration, "Registration not found.", nil)
		}
		return newError(KindRegistration, "Registration not found.", err)
	}
	if reg.ClientID != clientID {
		return newError(KindRegistration, "Client id not registered for this issuer", nil)
	}
	r.launch.registration = reg
	return nil
}

func (r *launchRun) validateSignature(ctx context.Context) error {
	set, err := r.v.keySets().FetchKeySet(ctx, r.launch.registration.KeySetURL)
	if err != nil {
		return newError(KindPublicKey, "Failed to fetch public key", err)
	}
	kid := asString(r.launch.header["kid"])
	if kid == "" {
		return newError(KindPublicKey, "Unable to find public key", nil)
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return newError(KindPublicKey, "Unable to find public key", nil)
	}
	pub, err := PublicKeyFromJWK(key)
	if err != nil {
		return newError(KindPublicKey, "Unable to find public key", err)
	}
	allowed := []string{keyAlgorithm(pub)}
	if alg, ok := key.Algorithm(); ok && alg.String() != "" {
		allowed = []string{alg.String()}
	}
	claims, err := VerifyToken(r.req.IDToken, pub, allowed)
	if err != nil {
		return err
	}
	r.launch.claims = claims
	return r.spendNonce(ctx)
}

// keyAlgorithm is the signing algorithm assumed for a JWK without "alg".
func keyAlgorithm(pub crypto.PublicKey) string {
	if ec, ok := pub.(*ecdsa.PublicKey); ok {
		return ecAlgorithm(ec.Curve)
	}
	return DefaultAlgorithm
}

func (r *launchRun) validateDeployment(ctx context.Context) error {
	deploymentID := asString(r.launch.claims[ClaimDeploymentID])
	if deploymentID == "" {
		return newError(KindRegistration, "Invalid deployment", nil)
	}
	if _, err := r.v.Registrations.FindDeployment(ctx, r.launch.registration.Issuer, deploymentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return newError(KindRegistration, "Unable to find deployment", nil)
		}
		return newError(KindRegistration, "Unable to find deployment", err)
	}
	return nil
}

func (r *launchRun) validateMessage(context.Context) error {
	if asString(r.launch.claims[ClaimMessageType]) == "" {
		return newError(KindMessageValidation, "Invalid message type", nil)
	}
	return r.v.messages().Validate(r.launch.claims)
}

func (r *launchRun) cacheLaunch(ctx context.Context) error {
	if err := r.v.LaunchStates.PutLaunchClaims(ctx, r.launch.id, r.launch.claims); err != nil {
		return fmt.Errorf("lti: cache launch: %w", err)
	}
	return nil
}

func (v *Validator) keySets() KeySetFetcher {
	if v.KeySets != nil {
		return v.KeySets
	}
	return &HTTPKeySetFetcher{}
}

func (v *Validator) messages() *ValidatorRegistry {
	if v.Messages != nil {
		return v.Messages
	}
	return defaultRegistry
}

var defaultRegistry = NewValidatorRegistry()

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}
