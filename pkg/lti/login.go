// pkg/lti/login.go
package lti

import (
	"context"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

/*
OIDC third party login initiation

The platform calls the tool's login URL with iss, login_hint and friends.
The tool answers with a redirect to the platform's authorization endpoint
carrying a fresh state and nonce:

	scope=openid response_type=id_token response_mode=form_post prompt=none
	client_id redirect_uri state nonce login_hint [lti_message_hint]

The nonce goes to the LaunchStateStore; the state goes to the user agent via
the StateTransport under "lti1p3_<state>".
*/

const (
	// StateKeyPrefix scopes the transport key to a single login attempt.
	StateKeyPrefix = "lti1p3_"
	// DefaultStateTTL is how long the state survives in the user agent.
	DefaultStateTTL = 60 * time.Second
)

// LoginParams are the inbound login initiation parameters.
type LoginParams struct {
	Issuer        string
	ClientID      string
	Audience      string
	LoginHint     string
	MessageHint   string
	TargetLinkURI string
	DeploymentID  string
}

// LoginParamsFromValues reads login parameters from a query string or form.
func LoginParamsFromValues(v url.Values) LoginParams {
	return LoginParams{
		Issuer:        v.Get("iss"),
		ClientID:      v.Get("client_id"),
		Audience:      v.Get("aud"),
		LoginHint:     v.Get("login_hint"),
		MessageHint:   v.Get("lti_message_hint"),
		TargetLinkURI: v.Get("target_link_uri"),
		DeploymentID:  v.Get("lti_deployment_id"),
	}
}

func (p LoginParams) clientID() string {
	if p.ClientID != "" {
		return p.ClientID
	}
	return p.Audience
}

// Redirect is the outcome of a login initiation.
type Redirect struct {
	Location string
	State    string
	Nonce    string
}

// Do sends a 302 to the platform.
func (r Redirect) Do(w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, r.Location, http.StatusFound)
}

var scriptRedirectTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Redirecting</title></head>
<body><script>window.location={{.}};</script>
<noscript><a href="{{.}}">Continue</a></noscript></body></html>
`))

// WriteScript renders a page that redirects from script. Useful when the
// login request arrives inside an iframe.
func (r Redirect) WriteScript(w io.Writer) error {
	if rw, ok := w.(http.ResponseWriter); ok {
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	}
	return scriptRedirectTmpl.Execute(w, r.Location)
}

// LoginInitiator builds the authentication redirect that starts a launch.
type LoginInitiator struct {
	Registrations RegistrationStore
	LaunchStates  LaunchStateStore
	// StateTTL bounds the state cookie lifetime (default 60s).
	StateTTL time.Duration
	Logger   *slog.Logger
}

// Initiate validates params, records state and nonce, and returns the
// redirect to the platform's authorization endpoint.
func (l *LoginInitiator) Initiate(ctx context.Context, transport StateTransport, launchURL string, params LoginParams) (Redirect, error) {
	if launchURL == "" {
		return Redirect{}, newError(KindConfiguration, "No launch URL configured", nil)
	}
	if params.Issuer == "" {
		return Redirect{}, newError(KindLogin, "Could not find issuer", nil)
	}
	if params.LoginHint == "" {
		return Redirect{}, newError(KindLogin, "Could not find login hint", nil)
	}

	reg, err := l.Registrations.FindRegistration(ctx, params.Issuer, params.clientID())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger().ErrorContext(ctx, "registration lookup failed", "iss", params.Issuer, "err", err)
		}
		return Redirect{}, newError(KindLogin, "Could not find registration details", err)
	}
	authURL, err := url.Parse(reg.AuthLoginURL)
	if err != nil || reg.AuthLoginURL == "" {
		return Redirect{}, newError(KindConfiguration, "Invalid auth login url", err)
	}

	state := "state-" + uuid.NewString()
	nonce := "nonce-" + uuid.NewString()

	if err := l.LaunchStates.RecordNonce(ctx, nonce); err != nil {
		return Redirect{}, newError(KindLogin, "Unable to record nonce", err)
	}
	if err := transport.WriteState(StateKeyPrefix+state, state, l.stateTTL()); err != nil {
		return Redirect{}, newError(KindLogin, "Unable to store state", err)
	}

	q := authURL.Query()
	q.Set("scope", "openid")
	q.Set("response_type", "id_token")
	q.Set("response_mode", "form_post")
	q.Set("prompt", "none")
	q.Set("client_id", reg.ClientID)
	q.Set("redirect_uri", launchURL)
	q.Set("state", state)
	q.Set("nonce", nonce)
	q.Set("login_hint", params.LoginHint)
	if params.MessageHint != "" {
		q.Set("lti_message_hint", params.MessageHint)
	}
	if params.DeploymentID != "" {
		q.Set("lti_deployment_id", params.DeploymentID)
	}
	authURL.RawQuery = q.Encode()

	l.logger().DebugContext(ctx, "oidc login", "iss", reg.Issuer, "client_id", reg.ClientID)
	return Redirect{Location: authURL.String(), State: state, Nonce: nonce}, nil
}

func (l *LoginInitiator) stateTTL() time.Duration {
	if l.StateTTL > 0 {
		return l.StateTTL
	}
	return DefaultStateTTL
}

func (l *LoginInitiator) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}
