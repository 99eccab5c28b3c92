package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"openusage.dev/openusage/pkg/bootstrap"
	"openusage.dev/openusage/pkg/config"
	ouerrors "openusage.dev/openusage/pkg/errors"
)

var (
	cfgFile     string
	verbose     bool
	appDataDir  string
	resourceDir string
	jsonOutput  bool
	appConfig   *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "openusage",
	Short: "OpenUsage - usage metrics from sandboxed provider plugins",
	Long: `OpenUsage discovers provider plugins, installs the bundled defaults on first
run, and executes each plugin in its own sandboxed Lua runtime to report
usage metrics.

Plugins can only reach the host through the capabilities declared in their
manifest. A plugin that fails is disabled without affecting the others.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Pre-parse global flags so config errors surface before any subcommand runs.
	cfgFile, verbose = bootstrap.PreParseGlobalFlags(os.Args)

	if err := initConfig(); err != nil {
		fmt.Fprintln(os.Stderr, ouerrors.FormatUserError(err))
		os.Exit(1)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ouerrors.FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() {
		_ = initConfig()
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "C", "", "config file (default is $HOME/.config/openusage/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&appDataDir, "app-data-dir", "", "override paths.app_data_dir")
	rootCmd.PersistentFlags().StringVar(&resourceDir, "resource-dir", "", "override paths.resource_dir")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	var err error
	appConfig, verbose, err = bootstrap.InitConfig(cfgFile, verbose)
	return err
}

// loadConfig returns the effective configuration with command-line path
// overrides applied.
func loadConfig() (*config.Config, error) {
	if appConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}

	cfg := *appConfig
	if appDataDir != "" {
		cfg.Paths.AppDataDir = appDataDir
	}
	if resourceDir != "" {
		cfg.Paths.ResourceDir = resourceDir
	}
	return &cfg, nil
}

// newLogger writes diagnostics to the command's stderr.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return bootstrap.NewLogger(cmd.ErrOrStderr(), cfg.Log.Level, verbose)
}

// resetConfig clears the cached configuration.
// This is primarily used in tests to ensure each test starts with a fresh config.
func resetConfig() {
	appConfig = nil
	bootstrap.Reset()
	viper.Reset()
}
