package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mind-engage/lti1p3-tool/internal/db"
	"github.com/mind-engage/lti1p3-tool/pkg/lti"
	"github.com/mind-engage/lti1p3-tool/pkg/lti/storage"
)

func (a *app) registerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Manage platform registrations",
	}
	cmd.AddCommand(a.registerAddCmd(), a.registerListCmd())
	return cmd
}

func (a *app) registerAddCmd() *cobra.Command {
	var (
		reg         lti.Registration
		keyPath     string
		deployments []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a platform registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyPath != "" {
				pemBytes, err := os.ReadFile(keyPath)
				if err != nil {
					return fmt.Errorf("read key: %w", err)
				}
				if _, err := lti.ParsePrivateKey(pemBytes); err != nil {
					return err
				}
				reg.ToolPrivateKey = pemBytes
			}

			dbh, err := db.Open(cmd.Context(), db.Driver(a.cfg.DBDriver), a.cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("db open failed: %w", err)
			}
			defer dbh.Close()

			store := storage.NewSQLRegistry(dbh)
			if err := store.SaveRegistration(cmd.Context(), reg); err != nil {
				return err
			}
			for _, d := range deployments {
				if err := store.AddDeployment(cmd.Context(), reg.Issuer, reg.ClientID, d); err != nil {
					return err
				}
			}
			a.logger.Info("registration saved",
				"iss", reg.Issuer,
				"client_id", reg.ClientID,
				"deployments", len(deployments))
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Registered %s (client_id: %s)\n", reg.Issuer, reg.ClientID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reg.Issuer, "issuer", "", "Platform issuer [required]")
	f.StringVar(&reg.ClientID, "client-id", "", "Client id issued by the platform [required]")
	f.StringVar(&reg.KeySetURL, "keyset-url", "", "Platform JWKS URL [required]")
	f.StringVar(&reg.AuthLoginURL, "auth-login-url", "", "Platform OIDC authorization URL [required]")
	f.StringVar(&reg.AuthTokenURL, "auth-token-url", "", "Platform OAuth2 token URL")
	f.StringVar(&reg.AuthServer, "auth-server", "", "Audience for service client assertions (default: token URL)")
	f.StringVar(&keyPath, "key", "", "Tool private key PEM used with this platform")
	f.StringVar(&reg.KID, "kid", "", "Tool key id (default: derived from issuer and client id)")
	f.StringVar(&reg.Algorithm, "alg", "", "Tool signing algorithm (default: RS256)")
	f.StringSliceVar(&deployments, "deployment", nil, "Deployment id (repeatable)")
	for _, name := range []string{"issuer", "client-id", "keyset-url", "auth-login-url"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *app) registerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List platform registrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbh, err := db.Open(cmd.Context(), db.Driver(a.cfg.DBDriver), a.cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("db open failed: %w", err)
			}
			defer dbh.Close()

			regs, err := storage.NewSQLRegistry(dbh).Registrations(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ISSUER\tCLIENT_ID\tKEYSET_URL\tKID")
			for _, r := range regs {
				kid, _ := r.KeyID()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Issuer, r.ClientID, r.KeySetURL, kid)
			}
			return tw.Flush()
		},
	}
}
