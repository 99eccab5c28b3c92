package cmd

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file, .openusage.toml,
OPENUSAGE_* environment variables and command-line overrides are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigCommand(cmd)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfigCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, cfg.Settings())
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# loaded from %s\n", used)
	}
	data, err := toml.Marshal(cfg.Settings())
	if err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	_, err = out.Write(data)
	return err
}
