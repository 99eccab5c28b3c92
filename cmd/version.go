package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"openusage.dev/openusage/pkg/hostapi"
)

// Version is set at build time via -ldflags "-X openusage.dev/openusage/cmd.Version=...".
var Version = "dev"

// GetVersion returns the current build version.
func GetVersion() string {
	return Version
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and host API version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "openusage %s (host API %s)\n", GetVersion(), hostapi.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
