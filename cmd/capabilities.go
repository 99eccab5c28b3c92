package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"openusage.dev/openusage/pkg/hostapi"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the host capabilities plugins may declare",
	Long: `List every capability this host provides. A plugin may only call the
capabilities named in its manifest; anything else is denied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapabilitiesCommand(cmd)
	},
}

func init() {
	rootCmd.AddCommand(capabilitiesCmd)
}

type capabilityInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Params      []string `json:"params"`
	Description string   `json:"description"`
}

func runCapabilitiesCommand(cmd *cobra.Command) error {
	caps := hostapi.Capabilities()
	infos := make([]capabilityInfo, 0, len(caps))
	for _, c := range caps {
		params := c.Params
		if params == nil {
			params = []string{}
		}
		infos = append(infos, capabilityInfo{Name: string(c.Name), Kind: c.Kind.String(), Params: params, Description: c.Description})
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, map[string]any{
			"api_version":  hostapi.APIVersion,
			"capabilities": infos,
			"events":       hostapi.Events(),
		})
	}

	fmt.Fprintf(out, "Host API %s\n\n", hostapi.APIVersion)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "CAPABILITY\tKIND\tPARAMS\tDESCRIPTION")
	for _, c := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Kind, strings.Join(c.Params, ", "), c.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nEvents: %s\n", strings.Join(hostapi.Events(), ", "))
	return nil
}
