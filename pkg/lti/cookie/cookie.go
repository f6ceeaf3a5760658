// pkg/lti/cookie/cookie.go
package cookie

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

/*
Cookie based state transport.

Tools run inside platform iframes, so the state cookie must be
SameSite=None; Secure. Browsers that mishandle SameSite=None get a LEGACY_
copy without the attribute, and browsers that block third party cookies
unless partitioned (CHIPS) get a PARTITIONED_ copy. Reads try the main
cookie first, then LEGACY_, then PARTITIONED_.

When Secret is set every value is wrapped in an HS256 token bound to the
cookie name, so a value cannot be forged or moved to another key.
*/

const (
	LegacyPrefix      = "LEGACY_"
	PartitionedPrefix = "PARTITIONED_"
)

// Options control how cookies are written.
type Options struct {
	// Secret signs values. Empty stores values as is.
	Secret []byte
	Path   string
	Domain string
	// Insecure drops the Secure flag. Only for plain http development.
	Insecure bool
}

// Transport implements lti.StateTransport for one request/response pair.
type Transport struct {
	w    http.ResponseWriter
	r    *http.Request
	opts Options
	now  func() time.Time
}

func New(w http.ResponseWriter, r *http.Request, opts Options) *Transport {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &Transport{w: w, r: r, opts: opts, now: time.Now}
}

func (t *Transport) ReadState(key string) (string, bool) {
	for _, name := range []string{key, LegacyPrefix + key, PartitionedPrefix + key} {
		c, err := t.r.Cookie(name)
		if err != nil || c.Value == "" {
			continue
		}
		v, err := t.decode(key, c.Value)
		if err != nil {
			continue
		}
		return v, true
	}
	return "", false
}

func (t *Transport) WriteState(key, value string, ttl time.Duration) error {
	encoded, err := t.encode(key, value, ttl)
	if err != nil {
		return err
	}
	expires := t.now().Add(ttl)
	maxAge := int(ttl / time.Second)
	secure := !t.opts.Insecure

	base := func(name string) *http.Cookie {
		return &http.Cookie{
			Name:     name,
			Value:    encoded,
			Path:     t.opts.Path,
			Domain:   t.opts.Domain,
			Expires:  expires,
			MaxAge:   maxAge,
			HttpOnly: true,
		}
	}

	main := base(key)
	main.Secure = secure
	if secure {
		main.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(t.w, main)

	http.SetCookie(t.w, base(LegacyPrefix+key))

	part := base(PartitionedPrefix + key)
	part.Secure = secure
	if secure {
		part.SameSite = http.SameSiteNoneMode
		part.Partitioned = true
	}
	http.SetCookie(t.w, part)
	return nil
}

type stateClaims struct {
	Key   string `json:"k"`
	Value string `json:"v"`
	jwt.RegisteredClaims
}

func (t *Transport) encode(key, value string, ttl time.Duration) (string, error) {
	if len(t.opts.Secret) == 0 {
		return value, nil
	}
	claims := stateClaims{
		Key:   key,
		Value: value,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(t.now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.opts.Secret)
}

var errKeyMismatch = errors.New("cookie: value bound to another key")

func (t *Transport) decode(key, raw string) (string, error) {
	if len(t.opts.Secret) == 0 {
		return raw, nil
	}
	var claims stateClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.opts.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", err
	}
	if claims.Key != key {
		return "", errKeyMismatch
	}
	return claims.Value, nil
}
