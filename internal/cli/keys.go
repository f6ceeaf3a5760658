package cli

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/lti1p3-tool/pkg/lti"
)

func (a *app) keygenCmd() *cobra.Command {
	var (
		keyType string
		rsaSize int
		out     string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a tool signing key",
		Long:  "Generate an RSA or EC private key in PEM format for signing deep linking responses and service assertions",
		RunE: func(cmd *cobra.Command, args []string) error {
			pemBytes, err := generateKey(keyType, rsaSize)
			if err != nil {
				return err
			}
			signer, err := lti.ParsePrivateKey(pemBytes)
			if err != nil {
				return err
			}
			kid, err := thumbprintKID(signer)
			if err != nil {
				return err
			}
			if out == "" {
				_, err = cmd.OutOrStdout().Write(pemBytes)
				return err
			}
			if err := os.WriteFile(out, pemBytes, 0o600); err != nil {
				return fmt.Errorf("failed to write key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Private key: %s (kid: %s)\n", out, kid)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyType, "type", "t", "rsa", "Key type: rsa or ec")
	cmd.Flags().IntVarP(&rsaSize, "size", "s", 2048, "RSA key size in bits (2048 or 4096)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}

func generateKey(keyType string, rsaSize int) ([]byte, error) {
	switch keyType {
	case "rsa":
		if rsaSize != 2048 && rsaSize != 4096 {
			return nil, fmt.Errorf("invalid RSA key size: %d (must be 2048 or 4096)", rsaSize)
		}
		k, err := rsa.GenerateKey(rand.Reader, rsaSize)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(k)}), nil
	case "ec":
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate EC key: %w", err)
		}
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, err
		}
		return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
	default:
		return nil, fmt.Errorf("invalid key type: %s (must be 'rsa' or 'ec')", keyType)
	}
}

// thumbprintKID derives a key id from the RFC 7638 thumbprint of the public key.
func thumbprintKID(signer crypto.Signer) (string, error) {
	key, err := lti.PublicJWK("", "", signer)
	if err != nil {
		return "", err
	}
	tp, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(tp), nil
}

func (a *app) jwksCmd() *cobra.Command {
	var (
		keyPath string
		kid     string
		alg     string
	)
	cmd := &cobra.Command{
		Use:   "jwks",
		Short: "Print the JWKS for a tool key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyPath == "" {
				keyPath = a.cfg.ToolKeyPath
			}
			if kid == "" {
				kid = a.cfg.ToolKeyID
			}
			if keyPath == "" {
				return fmt.Errorf("--key or TOOL_KEY_PATH is required")
			}
			pemBytes, err := os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			signer, err := lti.ParsePrivateKey(pemBytes)
			if err != nil {
				return err
			}
			if kid == "" {
				if kid, err = thumbprintKID(signer); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(lti.NewJWKS(lti.KeyPair{KID: kid, Alg: alg, PrivateKey: pemBytes}))
		},
	}
	cmd.Flags().StringVarP(&keyPath, "key", "k", "", "Private key PEM (default: TOOL_KEY_PATH)")
	cmd.Flags().StringVar(&kid, "kid", "", "Key ID (default: TOOL_KEY_ID or thumbprint)")
	cmd.Flags().StringVar(&alg, "alg", "", "Signing algorithm (default: RS256 for RSA, ES* for EC)")
	return cmd
}
