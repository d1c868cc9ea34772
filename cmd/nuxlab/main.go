package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelbrown/nuxlab/internal/app"
	"github.com/michaelbrown/nuxlab/internal/config"
	"github.com/michaelbrown/nuxlab/internal/logging"
)

var (
	configFlag   string
	apiURLFlag   string
	usernameFlag string
	passwordFlag string
	verboseFlag  bool
	logJSONFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "nuxlab",
	Short: "nuxlab - keep NuageX lab sandboxes in their desired state",
	Long: `nuxlab makes sure a named NuageX lab exists and is running, or is gone,
and prints its connection details.

Credentials are read from --username/--password, the config file, or the
NUX_USERNAME and NUX_PASSWORD environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(verboseFlag, logJSONFlag, os.Stderr)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ./nuxlab.yaml or $HOME/.nuxlab/nuxlab.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "NuageX API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&usernameFlag, "username", "", "NuageX username (overrides NUX_USERNAME)")
	rootCmd.PersistentFlags().StringVar(&passwordFlag, "password", "", "NuageX password (overrides NUX_PASSWORD)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSONFlag, "log-json", false, "Write logs as JSON")
}

// loadConfig reads the config and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if apiURLFlag != "" {
		cfg.API.URL = apiURLFlag
	}
	if usernameFlag != "" {
		cfg.Auth.Username = usernameFlag
	}
	if passwordFlag != "" {
		cfg.Auth.Password = passwordFlag
	}
	return cfg, nil
}

func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, nil)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(app.ExitCode(err))
	}
}
