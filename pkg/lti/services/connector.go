// pkg/lti/services/connector.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

/*
Service connector

LTI Advantage services (AGS, NRPS, groups) are called with an OAuth2 access
token obtained through the client_credentials grant. The tool authenticates
with a signed JWT client assertion (RFC 7523) instead of a client secret:

	iss = sub = client id, aud = registration auth server, jti = random

Tokens are cached per scope set until they expire.
*/

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionTTL bounds the lifetime of a client assertion.
const assertionTTL = 60 * time.Second

// Connector obtains and caches service access tokens for one registration.
type Connector struct {
	Registration lti.Registration
	HTTP         *http.Client

	mu     sync.Mutex
	tokens map[string]*oauth2.Token
	now    func() time.Time
}

func NewConnector(reg lti.Registration, hc *http.Client) *Connector {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Connector{Registration: reg, HTTP: hc, tokens: map[string]*oauth2.Token{}, now: time.Now}
}

// AccessToken returns a bearer token for scopes, fetching one if needed.
func (c *Connector) AccessToken(ctx context.Context, scopes []string) (string, error) {
	key := scopeKey(scopes)

	c.mu.Lock()
	tok, ok := c.tokens[key]
	c.mu.Unlock()
	if ok && tok.Valid() {
		return tok.AccessToken, nil
	}

	assertion, err := c.clientAssertion()
	if err != nil {
		return "", err
	}
	cfg := clientcredentials.Config{
		ClientID:  c.Registration.ClientID,
		TokenURL:  c.Registration.AuthTokenURL,
		Scopes:    scopes,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
	}
	tok, err = cfg.Token(context.WithValue(ctx, oauth2.HTTPClient, c.HTTP))
	if err != nil {
		return "", fmt.Errorf("services: fetch access token: %w", err)
	}

	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	return tok.AccessToken, nil
}

func (c *Connector) clientAssertion() (string, error) {
	reg := c.Registration
	if reg.AuthTokenURL == "" {
		return "", errors.New("services: registration has no token url")
	}
	kid, err := reg.KeyID()
	if err != nil {
		return "", err
	}
	key, err := lti.ParsePrivateKey(reg.ToolPrivateKey)
	if err != nil {
		return "", err
	}
	now := c.now()
	claims := map[string]any{
		"iss": reg.ClientID,
		"sub": reg.ClientID,
		"aud": reg.AuthorizationServer(),
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
		"jti": "lti-service-token-" + uuid.NewString(),
	}
	return lti.EncodeToken(claims, key, reg.SigningAlgorithm(), kid)
}

// Do sends req with a bearer token for scopes.
func (c *Connector) Do(ctx context.Context, req *http.Request, scopes []string) (*http.Response, error) {
	tok, err := c.AccessToken(ctx, scopes)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+tok)
	return c.HTTP.Do(req)
}

func scopeKey(scopes []string) string {
	s := append([]string(nil), scopes...)
	sort.Strings(s)
	return strings.Join(s, " ")
}

// httpErr reports a non-2xx platform response including a short body excerpt.
func httpErr(op string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(b) == 0 {
		return fmt.Errorf("%s: platform returned %s", op, resp.Status)
	}
	return fmt.Errorf("%s: platform returned %s: %s", op, resp.Status, strings.TrimSpace(string(b)))
}
