package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/layer-3/portal"
	"github.com/layer-3/portal/config"
	"github.com/layer-3/portal/core"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
	apiOrigin  string
	devMode    bool

	cfg *config.Config
	app *portal.Portal
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "Talk to the portal API with a persistent session",
	Long: `Talk to the portal API with a persistent session.

Only the access token is saved between runs. The refresh cookie lives for
a single invocation, so once the saved token expires the next command
reports the expired session and you log in again with "portal login".

If no config file is specified, portal looks for portal.yaml in the following locations:
  - ./portal.yaml
  - ./config/portal.yaml
  - ~/.config/portal/portal.yaml`,
	SilenceUsage:       true,
	PersistentPreRunE:  preRunE,
	PersistentPostRunE: postRunE,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiOrigin, "api", "", "API origin, overrides api.origin")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Use the development API origin")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd, helloCmd, predictCmd, infoCmd, healthCmd, watchCmd)
}

func preRunE(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(apiOrigin) > 0 {
		cfg.API.Origin = apiOrigin
	}
	if devMode {
		cfg.Mode = config.ModeDevelopment
	}

	if err := config.SetupLogging(cfg); err != nil {
		return err
	}
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	app, err = portal.Open(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

func postRunE(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	return app.Close()
}

// ensureVerified proves a restored token before the first guarded call
func ensureVerified(ctx context.Context) error {
	if app.Snapshot().Phase() != core.PhasePendingVerification {
		return nil
	}
	return app.Verify(ctx)
}

// explain turns session errors into something a user can act on
func explain(err error) error {
	if err == nil {
		return nil
	}
	if notice, ok := app.TakeNotice(); ok {
		return fmt.Errorf("%s (%w)", notice.Message, err)
	}
	if errors.Is(err, core.ErrAuthRejected) {
		return fmt.Errorf("not logged in, run `portal login` (%w)", err)
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
