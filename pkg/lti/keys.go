// pkg/lti/keys.go
package lti

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

/*
Key material for the tool side.

  • ParsePrivateKey turns PEM bytes (PKCS#1, PKCS#8 or SEC1) into a signer.
  • PublicJWK projects the public half into a JSON Web Key carrying
    kid, alg and use=sig, ready to be published in a JWKS document.

RSA keys publish {kty, alg, use, n, e, kid}; EC keys publish
{kty, alg, use, crv, x, y, kid}.
*/

// ParsePrivateKey parses an RSA or EC private key from PEM.
func ParsePrivateKey(pemBytes []byte) (crypto.Signer, error) {
	if len(bytes.TrimSpace(pemBytes)) == 0 {
		return nil, newError(KindKeyMaterial, "missing private key", nil)
	}
	rsaKey, rsaErr := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if rsaErr == nil {
		return rsaKey, nil
	}
	ecKey, ecErr := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if ecErr == nil {
		return ecKey, nil
	}
	return nil, newError(KindKeyMaterial, "unable to parse private key", rsaErr)
}

// PublicJWK builds the public JWK for signer. alg may be empty, in which
// case it is chosen from the key type.
func PublicJWK(kid, alg string, signer crypto.Signer) (jwk.Key, error) {
	if signer == nil {
		return nil, newError(KindKeyMaterial, "missing private key", nil)
	}
	pub := signer.Public()
	switch p := pub.(type) {
	case *rsa.PublicKey:
		if p.N == nil || p.E == 0 {
			return nil, newError(KindKeyMaterial, "rsa key has no public exponent", nil)
		}
		if alg == "" {
			alg = DefaultAlgorithm
		}
	case *ecdsa.PublicKey:
		if p.X == nil || p.Y == nil {
			return nil, newError(KindKeyMaterial, "ec key has no public point", nil)
		}
		if alg == "" {
			alg = ecAlgorithm(p.Curve)
		}
	default:
		return nil, newError(KindKeyMaterial, fmt.Sprintf("unsupported key type %T", pub), nil)
	}

	sigAlg, ok := signatureAlgorithm(alg)
	if !ok {
		return nil, newError(KindKeyMaterial, "unsupported algorithm "+alg, nil)
	}
	key, err := jwk.Import(pub)
	if err != nil {
		return nil, newError(KindKeyMaterial, "unable to import public key", err)
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, newError(KindKeyMaterial, "set kid", err)
	}
	if err := key.Set(jwk.AlgorithmKey, sigAlg); err != nil {
		return nil, newError(KindKeyMaterial, "set alg", err)
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, newError(KindKeyMaterial, "set use", err)
	}
	return key, nil
}

// PublicKeyFromJWK exports the raw public key held by a platform JWK.
func PublicKeyFromJWK(key jwk.Key) (crypto.PublicKey, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, err
	}
	switch k := raw.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return k, nil
	case *rsa.PrivateKey:
		return &k.PublicKey, nil
	case *ecdsa.PrivateKey:
		return &k.PublicKey, nil
	}
	return nil, fmt.Errorf("unsupported key type %T", raw)
}

func ecAlgorithm(c elliptic.Curve) string {
	switch c.Params().BitSize {
	case 384:
		return "ES384"
	case 521:
		return "ES512"
	}
	return "ES256"
}

func signatureAlgorithm(alg string) (jwa.SignatureAlgorithm, bool) {
	switch alg {
	case "RS256":
		return jwa.RS256(), true
	case "RS384":
		return jwa.RS384(), true
	case "RS512":
		return jwa.RS512(), true
	case "PS256":
		return jwa.PS256(), true
	case "PS384":
		return jwa.PS384(), true
	case "PS512":
		return jwa.PS512(), true
	case "ES256":
		return jwa.ES256(), true
	case "ES384":
		return jwa.ES384(), true
	case "ES512":
		return jwa.ES512(), true
	}
	var none jwa.SignatureAlgorithm
	return none, false
}
