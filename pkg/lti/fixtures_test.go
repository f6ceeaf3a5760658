package lti

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

const (
	testIssuer       = "https://platform.example.com"
	testClientID     = "tool-client"
	testDeploymentID = "dep-1"
	testPlatformKID  = "platform-kid"
	testKeySetURL    = "https://platform.example.com/jwks"
)

var (
	keyOnce     sync.Once
	platformPEM []byte
	toolPEM     []byte
)

// rsaPEMs generates the shared RSA keys once per test binary.
func rsaPEMs(t *testing.T) (platform, tool []byte) {
	t.Helper()
	keyOnce.Do(func() {
		platformPEM = newRSAPEM(t)
		toolPEM = newRSAPEM(t)
	})
	return platformPEM, toolPEM
}

func newRSAPEM(t *testing.T) []byte {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)})
}

func newECPEM(t *testing.T) []byte {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ec key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(k)
	if err != nil {
		t.Fatalf("marshal ec: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func testRegistration(t *testing.T) Registration {
	_, tool := rsaPEMs(t)
	return Registration{
		Issuer:         testIssuer,
		ClientID:       testClientID,
		KeySetURL:      testKeySetURL,
		AuthLoginURL:   "https://platform.example.com/auth",
		AuthTokenURL:   "https://platform.example.com/token",
		ToolPrivateKey: tool,
	}
}

// ---- fakes ----

type fakeRegistrations struct {
	regs        map[string]Registration // issuer|clientID
	deployments map[string]bool         // issuer|deploymentID
	regCalls    int
}

func newFakeRegistrations(regs ...Registration) *fakeRegistrations {
	f := &fakeRegistrations{regs: map[string]Registration{}, deployments: map[string]bool{}}
	for _, r := range regs {
		f.regs[r.Issuer+"|"+r.ClientID] = r
	}
	return f
}

func (f *fakeRegistrations) FindRegistration(_ context.Context, issuer, clientID string) (Registration, error) {
	f.regCalls++
	if clientID == "" {
		for _, r := range f.regs {
			if r.Issuer == issuer {
				return r, nil
			}
		}
		return Registration{}, ErrNotFound
	}
	r, ok := f.regs[issuer+"|"+clientID]
	if !ok {
		return Registration{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeRegistrations) FindDeployment(_ context.Context, issuer, deploymentID string) (Deployment, error) {
	if !f.deployments[issuer+"|"+deploymentID] {
		return Deployment{}, ErrNotFound
	}
	return Deployment{DeploymentID: deploymentID}, nil
}

type fakeLaunchStore struct {
	mu       sync.Mutex
	launches map[string]map[string]any
	nonces   map[string]bool
}

func newFakeLaunchStore() *fakeLaunchStore {
	return &fakeLaunchStore{launches: map[string]map[string]any{}, nonces: map[string]bool{}}
}

func (s *fakeLaunchStore) GetLaunchClaims(_ context.Context, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.launches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *fakeLaunchStore) PutLaunchClaims(_ context.Context, id string, claims map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launches[id] = claims
	return nil
}

func (s *fakeLaunchStore) RecordNonce(_ context.Context, nonce string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[nonce] = true
	return nil
}

func (s *fakeLaunchStore) HasNonce(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonces[nonce], nil
}

// consumingLaunchStore adds single use nonces.
type consumingLaunchStore struct{ *fakeLaunchStore }

func (s consumingLaunchStore) ConsumeNonce(_ context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.nonces[nonce]
	delete(s.nonces, nonce)
	return ok, nil
}

type mapTransport map[string]string

func (m mapTransport) ReadState(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m mapTransport) WriteState(key, value string, _ time.Duration) error {
	m[key] = value
	return nil
}

type fakeKeySets struct {
	set   jwk.Set
	err   error
	calls int
	url   string
}

func (f *fakeKeySets) FetchKeySet(_ context.Context, url string) (jwk.Set, error) {
	f.calls++
	f.url = url
	if f.err != nil {
		return nil, f.err
	}
	return f.set, nil
}

// platformKeySet publishes the platform signing key under testPlatformKID.
func platformKeySet(t *testing.T) jwk.Set {
	platform, _ := rsaPEMs(t)
	return NewJWKS(KeyPair{KID: testPlatformKID, PrivateKey: platform}).Set()
}

func signAsPlatform(t *testing.T, claims map[string]any) string {
	t.Helper()
	platform, _ := rsaPEMs(t)
	key, err := ParsePrivateKey(platform)
	if err != nil {
		t.Fatalf("parse platform key: %v", err)
	}
	tok, err := EncodeToken(claims, key, "RS256", testPlatformKID)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return tok
}

func resourceLinkClaims(nonce string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":             testIssuer,
		"aud":             testClientID,
		"sub":             "user-1",
		"exp":             now.Add(time.Minute).Unix(),
		"iat":             now.Unix(),
		"nonce":           nonce,
		ClaimDeploymentID: testDeploymentID,
		ClaimMessageType:  MessageResourceLink,
		ClaimVersion:      Version13,
		ClaimRoles:        []any{"http://purl.imsglobal.org/vocab/lis/v2/membership#Learner"},
		ClaimResourceLink: map[string]any{"id": "rl-1"},
	}
}
