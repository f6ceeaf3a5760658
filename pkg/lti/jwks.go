// pkg/lti/jwks.go
package lti

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

/*
JWKS publisher (tool side)

Platforms fetch the tool's public keys from a tool defined route, usually
  https://<tool>/.well-known/jwks.json
to verify deep linking responses and service client assertions.

A JWKS is built from (kid, private key) pairs, either directly or from a
Registration. Keys that cannot be parsed are left out of the document.
Output order follows input order so repeated calls are byte identical.
*/

// KeyPair is one signing identity to publish.
type KeyPair struct {
	KID        string
	Alg        string
	PrivateKey []byte
}

// JWKS publishes the public half of a fixed list of key pairs.
type JWKS struct {
	pairs []KeyPair
}

func NewJWKS(pairs ...KeyPair) *JWKS {
	return &JWKS{pairs: append([]KeyPair(nil), pairs...)}
}

// JWKSFromRegistration publishes the registration's tool key under its key id.
func JWKSFromRegistration(reg Registration) (*JWKS, error) {
	kid, err := reg.KeyID()
	if err != nil {
		return nil, err
	}
	return NewJWKS(KeyPair{KID: kid, Alg: reg.SigningAlgorithm(), PrivateKey: reg.ToolPrivateKey}), nil
}

// JWKSFromIssuer looks up the registration for issuer (and clientID, if
// set) and publishes its key.
func JWKSFromIssuer(ctx context.Context, store RegistrationStore, issuer, clientID string) (*JWKS, error) {
	reg, err := store.FindRegistration(ctx, issuer, clientID)
	if err != nil {
		return nil, newError(KindRegistration, "Registration not found.", err)
	}
	return JWKSFromRegistration(reg)
}

// Keys returns the public JWKs that could be derived.
func (j *JWKS) Keys() []jwk.Key {
	out := make([]jwk.Key, 0, len(j.pairs))
	for _, p := range j.pairs {
		signer, err := ParsePrivateKey(p.PrivateKey)
		if err != nil {
			continue
		}
		key, err := PublicJWK(p.KID, p.Alg, signer)
		if err != nil {
			continue
		}
		out = append(out, key)
	}
	return out
}

// Set returns the keys as a jwk.Set.
func (j *JWKS) Set() jwk.Set {
	set := jwk.NewSet()
	for _, k := range j.Keys() {
		_ = set.AddKey(k)
	}
	return set
}

// MarshalJSON renders {"keys":[...]}.
func (j *JWKS) MarshalJSON() ([]byte, error) {
	keys := j.Keys()
	doc := struct {
		Keys []jwk.Key `json:"keys"`
	}{Keys: keys}
	return json.Marshal(doc)
}

// Document returns the set as a plain {"keys": [...]} value.
func (j *JWKS) Document() (map[string]any, error) {
	b, err := j.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// JWKSHandler serves a JWKS document with caching headers.
type JWKSHandler struct {
	// Resolve returns the key set for the request.
	Resolve func(*http.Request) (*JWKS, error)

	// Optional: cache control for responses (default: 10 minutes).
	CacheMaxAge time.Duration
	// Optional: override the clock (useful in tests).
	Now func() time.Time
}

// StaticJWKSHandler serves the same key set for every request.
func StaticJWKSHandler(set *JWKS) *JWKSHandler {
	return &JWKSHandler{Resolve: func(*http.Request) (*JWKS, error) { return set, nil }}
}

func (h *JWKSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Resolve == nil {
		http.Error(w, "jwks: not configured", http.StatusInternalServerError)
		return
	}
	set, err := h.Resolve(r)
	if err != nil {
		status := http.StatusInternalServerError
		if KindOf(err) == KindRegistration {
			status = http.StatusNotFound
		}
		http.Error(w, "jwks: "+err.Error(), status)
		return
	}
	payload, err := json.Marshal(set)
	if err != nil {
		http.Error(w, "jwks: marshal error", http.StatusInternalServerError)
		return
	}

	etag := computeETag(payload)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.cacheAge().Seconds())))
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", h.now().UTC().Format(http.TimeFormat))

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (h *JWKSHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *JWKSHandler) cacheAge() time.Duration {
	if h.CacheMaxAge > 0 {
		return h.CacheMaxAge
	}
	return 10 * time.Minute
}

func computeETag(b []byte) string {
	sum := sha256.Sum256(b)
	// weak ETag is fine here
	return `W/"` + base64.RawURLEncoding.EncodeToString(sum[:]) + `"`
}
