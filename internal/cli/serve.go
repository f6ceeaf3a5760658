package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mind-engage/lti1p3-tool/internal/config"
	"github.com/mind-engage/lti1p3-tool/internal/db"
	"github.com/mind-engage/lti1p3-tool/internal/httpapi"
	"github.com/mind-engage/lti1p3-tool/pkg/lti"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/cookie"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/storage"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the LTI tool HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	a.logger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HTTP_ADDR", cfg.HTTPAddr),
		slog.String("PUBLIC_URL", cfg.PublicURL),
		slog.String("DB_DRIVER", cfg.DBDriver),
		slog.Bool("REDIS", cfg.RedisURL != ""),
		slog.String("NONCE_MODE", cfg.NonceMode),
	)

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	defer dbh.Close()
	registrations := storage.NewSQLRegistry(dbh)

	launchStates, closeStates, err := a.launchStore(ctx)
	if err != nil {
		return err
	}
	defer closeStates()

	toolKeys, err := toolJWKS(cfg)
	if err != nil {
		return err
	}

	nonceMode := lti.NonceEnforce
	if cfg.NonceMode == "advisory" {
		nonceMode = lti.NonceAdvisory
	}

	api := &httpapi.API{
		Login: &lti.LoginInitiator{
			Registrations: registrations,
			LaunchStates:  launchStates,
			StateTTL:      cfg.StateTTL,
			Logger:        a.logger,
		},
		Validator: &lti.Validator{
			Registrations: registrations,
			LaunchStates:  launchStates,
			KeySets:       &lti.HTTPKeySetFetcher{UserAgent: cfg.UserAgent, Timeout: cfg.JWKSFetchTimeout},
			NonceMode:     nonceMode,
			Logger:        a.logger,
		},
		JWKS: &lti.JWKSHandler{
			Resolve:     httpapi.IssuerJWKS(registrations, toolKeys),
			CacheMaxAge: cfg.JWKSCacheMaxAge,
		},
		Cookies: cookie.Options{
			Secret:   []byte(cfg.StateSigningSecret),
			Insecure: cfg.InsecureCookies,
		},
		LaunchURL:      cfg.LaunchURL(),
		SessionTTL:     cfg.LaunchTTL,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         a.logger,
	}

	return httpapi.Serve(ctx, api.Routes(), httpapi.ServerOptions{
		Addr:            cfg.HTTPAddr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, a.logger)
}

type launchStateStore interface {
	lti.LaunchStateStore
	lti.NonceConsumer
}

// launchStore picks Redis when REDIS_URL is set, else process memory.
func (a *app) launchStore(ctx context.Context) (launchStateStore, func(), error) {
	cfg := a.cfg
	if cfg.RedisURL == "" {
		if !cfg.IsDev() {
			a.logger.Warn("REDIS_URL not set, launch state is process local")
		}
		s := storage.NewMemoryLaunchStore(0)
		s.LaunchTTL = cfg.LaunchTTL
		s.NonceTTL = cfg.NonceTTL
		return s, func() {}, nil
	}
	s, err := storage.NewRedisLaunchStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	s.LaunchTTL = cfg.LaunchTTL
	s.NonceTTL = cfg.NonceTTL
	a.logger.Info("connected to redis")
	return s, func() { _ = s.Close() }, nil
}

// toolJWKS loads the tool's default signing key, if configured.
func toolJWKS(cfg *config.Config) (*lti.JWKS, error) {
	if cfg.ToolKeyPath == "" {
		return nil, nil
	}
	pemBytes, err := os.ReadFile(cfg.ToolKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read TOOL_KEY_PATH: %w", err)
	}
	signer, err := lti.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	kid := cfg.ToolKeyID
	if kid == "" {
		if kid, err = thumbprintKID(signer); err != nil {
			return nil, err
		}
	}
	return lti.NewJWKS(lti.KeyPair{KID: kid, PrivateKey: pemBytes}), nil
}
