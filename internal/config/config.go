package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

// Config is the tool's runtime configuration, read from the environment.
type Config struct {
	Environment string `env:"ENVIRONMENT,default=dev"`
	HTTPAddr    string `env:"HTTP_ADDR,default=:8080"`
	PublicURL   string `env:"PUBLIC_URL,default=http://localhost:8080"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	ReadTimeout     time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	DBDriver string `env:"DB_DRIVER,default=sqlite"` // sqlite|postgres
	DBDSN    string `env:"DB_DSN"`

	// Launch state: empty REDIS_URL keeps it in memory.
	RedisURL  string        `env:"REDIS_URL"`
	LaunchTTL time.Duration `env:"LAUNCH_TTL,default=2h"`
	NonceTTL  time.Duration `env:"NONCE_TTL,default=10m"`
	StateTTL  time.Duration `env:"STATE_TTL,default=60s"`

	StateSigningSecret string `env:"STATE_SIGNING_SECRET"`
	InsecureCookies    bool   `env:"INSECURE_COOKIES,default=false"`

	JWKSFetchTimeout time.Duration `env:"JWKS_FETCH_TIMEOUT,default=10s"`
	JWKSCacheMaxAge  time.Duration `env:"JWKS_CACHE_MAX_AGE,default=10m"`
	UserAgent        string        `env:"LTI_USER_AGENT,default=lti-1-3-go-library"`
	NonceMode        string        `env:"NONCE_MODE,default=enforce"` // enforce|advisory

	ToolKeyPath string `env:"TOOL_KEY_PATH"`
	ToolKeyID   string `env:"TOOL_KEY_ID"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS,separator=|"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

// NewServerConfig loads environment variables into a Config and validates it.
func NewServerConfig() (*Config, error) {
	var cfg Config

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}
	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", cfg.DBDriver)
	}
	switch cfg.NonceMode {
	case "enforce", "advisory":
	default:
		return fmt.Errorf("NONCE_MODE must be enforce or advisory, got %q", cfg.NonceMode)
	}
	u, err := url.Parse(cfg.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PUBLIC_URL must be an absolute URL, got %q", cfg.PublicURL)
	}
	if cfg.StateTTL <= 0 || cfg.LaunchTTL <= 0 || cfg.NonceTTL <= 0 {
		return fmt.Errorf("STATE_TTL, LAUNCH_TTL and NONCE_TTL must be positive")
	}
	if cfg.JWKSFetchTimeout <= 0 {
		return fmt.Errorf("JWKS_FETCH_TIMEOUT must be positive")
	}
	if cfg.Environment == "prod" && cfg.StateSigningSecret == "" {
		return fmt.Errorf("STATE_SIGNING_SECRET is required when ENVIRONMENT=prod")
	}
	if cfg.Environment == "prod" && cfg.InsecureCookies {
		return fmt.Errorf("INSECURE_COOKIES cannot be set when ENVIRONMENT=prod")
	}
	return nil
}

// LaunchURL is the redirect_uri handed to platforms.
func (c *Config) LaunchURL() string {
	return strings.TrimSuffix(c.PublicURL, "/") + "/lti/launch"
}

func (c *Config) IsDev() bool { return c.Environment == "dev" }
