// pkg/lti/token.go
package lti

import (
	"crypto"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClockSkew is the leeway applied to exp and iat during verification.
const ClockSkew = 5 * time.Second

// EncodeToken signs claims as a compact JWT with the given algorithm and kid.
func EncodeToken(claims map[string]any, key crypto.Signer, alg, kid string) (string, error) {
	if alg == "" {
		alg = DefaultAlgorithm
	}
	method := jwt.GetSigningMethod(alg)
	if method == nil {
		return "", newError(KindConfiguration, "unsupported signing algorithm "+alg, nil)
	}
	tok := jwt.NewWithClaims(method, jwt.MapClaims(claims))
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		return "", newError(KindKeyMaterial, "unable to sign token", err)
	}
	return s, nil
}

// DecodeUnverified splits and decodes a token without checking its
// signature. Only use the result to pick a verification key.
func DecodeUnverified(token string) (header, claims map[string]any, err error) {
	if token == "" {
		return nil, nil, newError(KindTokenFormat, "Missing id_token", nil)
	}
	if strings.Count(token, ".") != 2 {
		return nil, nil, newError(KindTokenFormat, "Invalid id_token, JWT must contain 3 parts", nil)
	}
	mc := jwt.MapClaims{}
	t, _, perr := jwt.NewParser().ParseUnverified(token, mc)
	if perr != nil {
		return nil, nil, newError(KindTokenFormat, "Invalid id_token, unable to decode", perr)
	}
	return t.Header, map[string]any(mc), nil
}

// VerifyToken checks the signature and time claims of token against key.
// Every failure wraps ErrInvalidSignature.
func VerifyToken(token string, key crypto.PublicKey, allowed []string) (map[string]any, error) {
	if strings.Count(token, ".") != 2 {
		return nil, newError(KindTokenFormat, "Invalid id_token, JWT must contain 3 parts", ErrInvalidSignature)
	}
	if len(allowed) == 0 {
		allowed = []string{DefaultAlgorithm}
	}
	mc := jwt.MapClaims{}
	p := jwt.NewParser(
		jwt.WithValidMethods(allowed),
		jwt.WithLeeway(ClockSkew),
		jwt.WithIssuedAt(),
	)
	_, err := p.ParseWithClaims(token, mc, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil {
		return nil, newError(KindTokenFormat, "Invalid signature on id_token", fmt.Errorf("%w: %v", ErrInvalidSignature, err))
	}
	return map[string]any(mc), nil
}
