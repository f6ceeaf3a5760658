package cli

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mind-engage/lti1p3-tool/internal/config"
	"github.com/mind-engage/lti1p3-tool/internal/logger"
)

// Version is set at build time.
var Version = "dev"

type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the ltitool command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:               "ltitool",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "LTI 1.3 tool server",
		Long:              `ltitool accepts LTI 1.3 launches from learning platforms, publishes the tool's JWKS and manages platform registrations`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is fine
			_ = godotenv.Load()

			var err error
			a.cfg, err = config.NewServerConfig()
			if err != nil {
				log.Printf("failed to load configuration: %v", err.Error())
				return err
			}
			a.logger = logger.InitLogger(logger.ParseLogLevel(a.cfg.LogLevel), a.cfg.Environment)
			return nil
		},
	}

	rootCmd.AddCommand(a.serveCmd())
	rootCmd.AddCommand(a.keygenCmd())
	rootCmd.AddCommand(a.jwksCmd())
	rootCmd.AddCommand(a.registerCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
