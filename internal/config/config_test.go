package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewServerConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "test")
	cfg, err := NewServerConfig()
	if err != nil {
		t.Fatalf("NewServerConfig: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DBDriver != "sqlite" || cfg.NonceMode != "enforce" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StateTTL != 60*time.Second || cfg.LaunchTTL != 2*time.Hour {
		t.Fatalf("unexpected ttl defaults: state=%s launch=%s", cfg.StateTTL, cfg.LaunchTTL)
	}
	if cfg.LaunchURL() != "http://localhost:8080/lti/launch" {
		t.Fatalf("LaunchURL = %q", cfg.LaunchURL())
	}
}

func TestNewServerConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("PUBLIC_URL", "https://tool.example.com/")
	t.Setenv("NONCE_MODE", "advisory")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com|https://b.example.com")
	t.Setenv("JWKS_FETCH_TIMEOUT", "3s")

	cfg, err := NewServerConfig()
	if err != nil {
		t.Fatalf("NewServerConfig: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Fatalf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.JWKSFetchTimeout != 3*time.Second || cfg.NonceMode != "advisory" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.LaunchURL() != "https://tool.example.com/lti/launch" {
		t.Fatalf("LaunchURL = %q", cfg.LaunchURL())
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{
			Environment:      "dev",
			PublicURL:        "http://localhost:8080",
			DBDriver:         "sqlite",
			NonceMode:        "enforce",
			StateTTL:         time.Minute,
			LaunchTTL:        time.Hour,
			NonceTTL:         time.Minute,
			JWKSFetchTimeout: time.Second,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "ENVIRONMENT"},
		{"bad driver", func(c *Config) { c.DBDriver = "mysql" }, "DB_DRIVER"},
		{"bad nonce mode", func(c *Config) { c.NonceMode = "off" }, "NONCE_MODE"},
		{"relative public url", func(c *Config) { c.PublicURL = "/tool" }, "PUBLIC_URL"},
		{"zero state ttl", func(c *Config) { c.StateTTL = 0 }, "STATE_TTL"},
		{"prod without secret", func(c *Config) { c.Environment = "prod" }, "STATE_SIGNING_SECRET"},
		{"prod insecure cookies", func(c *Config) {
			c.Environment = "prod"
			c.StateSigningSecret = "s"
			c.InsecureCookies = true
		}, "INSECURE_COOKIES"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
