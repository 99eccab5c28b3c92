package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"openusage.dev/openusage/pkg/bootstrap"
	ouerrors "openusage.dev/openusage/pkg/errors"
	"openusage.dev/openusage/pkg/hostapi"
	"openusage.dev/openusage/pkg/plugin"
	"openusage.dev/openusage/pkg/runtime"
)

// pluginsCmd represents the plugins command
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Discover, validate and probe plugins",
	Long:  `Discover the active plugin directory, validate manifests and run plugin probes.`,
}

// pluginsListCmd represents the plugins list command
var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered plugins",
	Long: `Resolve the active plugin directory and list every plugin that loaded.

A non-empty ./plugins or ../plugins directory takes precedence (developer
override). Otherwise plugins are read from <app-data-dir>/plugins, which is
populated from the bundled defaults the first time it is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPluginsListCommand(cmd)
	},
}

var pluginsPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show where plugins are resolved from",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPluginsPathsCommand(cmd)
	},
}

var pluginsProbeCmd = &cobra.Command{
	Use:   "probe [plugin-id...]",
	Short: "Activate plugins and print their usage metrics",
	Long: `Activate the discovered plugins, call each plugin's probe function and print
the resulting metric lines. With no arguments every plugin is probed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPluginsProbeCommand(cmd, args)
	},
}

var pluginsValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate a single plugin directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPluginsValidateCommand(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
	pluginsCmd.AddCommand(pluginsListCmd)
	pluginsCmd.AddCommand(pluginsPathsCmd)
	pluginsCmd.AddCommand(pluginsProbeCmd)
	pluginsCmd.AddCommand(pluginsValidateCmd)
}

type pluginInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities"`
	Dir          string   `json:"dir"`
}

type skippedInfo struct {
	Dir   string `json:"dir"`
	Error string `json:"error"`
}

type catalogInfo struct {
	Source  string        `json:"source"`
	Path    string        `json:"path"`
	Plugins []pluginInfo  `json:"plugins"`
	Skipped []skippedInfo `json:"skipped"`
}

func describePlugin(p *plugin.LoadedPlugin) pluginInfo {
	caps := make([]string, 0, p.Permissions().Len())
	for _, c := range p.Permissions().List() {
		caps = append(caps, string(c))
	}
	return pluginInfo{ID: p.ID(), Name: p.Name(), Version: p.Version(), Capabilities: caps, Dir: p.DirName()}
}

// discover runs the discovery pipeline for the effective configuration.
func discover(cmd *cobra.Command) (plugin.Resolution, *plugin.Catalog, error) {
	cfg, err := loadConfig()
	if err != nil {
		return plugin.Resolution{}, nil, err
	}
	engine := bootstrap.NewEngine(cfg, newLogger(cmd, cfg))
	res, catalog := engine.DiscoverAndInstall()
	return res, catalog, nil
}

func runPluginsListCommand(cmd *cobra.Command) error {
	res, catalog, err := discover(cmd)
	if err != nil {
		return err
	}

	info := catalogInfo{Source: string(res.Source), Path: res.Path, Plugins: []pluginInfo{}, Skipped: []skippedInfo{}}
	for _, p := range catalog.Plugins {
		info.Plugins = append(info.Plugins, describePlugin(p))
	}
	for _, s := range catalog.Skipped {
		info.Skipped = append(info.Skipped, skippedInfo{Dir: s.Dir, Error: s.Err.Error()})
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, info)
	}

	if len(info.Plugins) == 0 {
		fmt.Fprintf(out, "No plugins found in %s\n", res.Path)
	} else {
		fmt.Fprintf(out, "Found %d plugin(s) in %s (%s):\n\n", len(info.Plugins), res.Path, res.Source)

		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVERSION\tCAPABILITIES\tDIR")
		for _, p := range info.Plugins {
			caps := strings.Join(p.Capabilities, ",")
			if caps == "" {
				caps = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Version, caps, p.Dir)
		}
		w.Flush()
	}

	if len(info.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d plugin(s):\n", len(info.Skipped))
		for _, s := range catalog.Skipped {
			fmt.Fprintf(out, "  %s: %s\n", s.Dir, ouerrors.FormatUserError(s.Err))
		}
	}
	return nil
}

func runPluginsPathsCommand(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver := bootstrap.NewEngine(cfg, newLogger(cmd, cfg)).Resolver
	res := resolver.Resolve()

	paths := map[string]string{
		"source":       string(res.Source),
		"active":       res.Path,
		"bundled":      res.BundledPath,
		"app_data_dir": cfg.Paths.AppDataDir,
		"resource_dir": cfg.Paths.ResourceDir,
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, paths)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, key := range []string{"source", "active", "bundled", "app_data_dir", "resource_dir"} {
		value := paths[key]
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, "%s:\t%s\n", key, value)
	}
	return w.Flush()
}

func runPluginsProbeCommand(cmd *cobra.Command, ids []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	_, catalog := bootstrap.NewEngine(cfg, logger).DiscoverAndInstall()
	catalog, err = filterCatalog(catalog, ids)
	if err != nil {
		return err
	}

	surface := bootstrap.NewSurface(cfg, logger)
	manager := runtime.NewManager(surface, bootstrap.RuntimeOptions(cfg, logger))
	defer manager.StopAll()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	manager.ActivateCatalog(ctx, catalog)
	manager.Publish(ctx, hostapi.EventRefresh, map[string]any{"reason": "cli"})

	outputs := manager.ProbeAll(ctx)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, outputs)
	}
	if len(outputs) == 0 {
		fmt.Fprintln(out, "No plugins to probe")
		return nil
	}
	renderProbeOutputs(out, outputs, terminalWidth(out))
	return nil
}

// filterCatalog keeps only the requested plugin ids, in request order.
func filterCatalog(c *plugin.Catalog, ids []string) (*plugin.Catalog, error) {
	if len(ids) == 0 {
		return c, nil
	}
	filtered := &plugin.Catalog{Skipped: c.Skipped}
	for _, id := range ids {
		p, ok := c.Lookup(id)
		if !ok {
			return nil, errors.Newf("plugin %q not found (available: %s)", id, strings.Join(c.IDs(), ", "))
		}
		filtered.Plugins = append(filtered.Plugins, p)
	}
	return filtered, nil
}

func runPluginsValidateCommand(cmd *cobra.Command, dir string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loader := plugin.NewLoader(newLogger(cmd, cfg))

	p, err := loader.LoadPlugin(dir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	info := describePlugin(p)
	if jsonOutput {
		return writeJSON(out, info)
	}
	fmt.Fprintf(out, "%s %s is valid\n", info.ID, info.Version)
	if len(info.Capabilities) > 0 {
		fmt.Fprintf(out, "capabilities: %s\n", strings.Join(info.Capabilities, ", "))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
