package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openusage.dev/openusage/pkg/runtime"
)

const alphaSource = `
function probe(ctx)
  local used = host.json.query('{"usage":{"used":30,"limit":120}}', "usage.used")
  return { lines = {
    { type = "progress", label = "Requests", value = used, max = 120 },
    { type = "badge", label = "Status", text = "OK", color = "#22c55e" },
  } }
end
`

const betaSource = `
function probe(ctx)
  return { lines = { { type = "text", label = "Plan", value = "Team" } } }
end
`

// runCommand executes the root command with args and returns its stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	resetConfig()
	cfgFile, verbose, appDataDir, resourceDir, jsonOutput = "", false, "", "", false
	t.Cleanup(resetConfig)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}

func writeBundledPlugin(t *testing.T, bundled, id, name string, caps []string, src string) {
	t.Helper()
	dir := filepath.Join(bundled, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	manifest, err := json.Marshal(map[string]any{
		"id": id, "name": name, "version": "1.0.0", "entry": "plugin.lua", "capabilities": caps,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), manifest, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte(src), 0o644))
}

// fixtureDirs returns an empty app data dir and a resource dir bundling
// the alpha and beta plugins.
func fixtureDirs(t *testing.T) (appData, resources string) {
	t.Helper()
	appData = t.TempDir()
	resources = t.TempDir()
	bundled := filepath.Join(resources, "bundled_plugins")
	writeBundledPlugin(t, bundled, "alpha", "Alpha", []string{"json.query"}, alphaSource)
	writeBundledPlugin(t, bundled, "beta", "Beta", []string{}, betaSource)
	return appData, resources
}

func TestRootCommandStructure(t *testing.T) {
	// Not parallel - accesses global rootCmd
	cmd := rootCmd

	assert.Equal(t, "openusage", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	for _, keyword := range []string{"plugin", "sandboxed", "capabilities"} {
		assert.Contains(t, cmd.Long, keyword)
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	// Not parallel - accesses global rootCmd
	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{name: "config", shorthand: "C", defValue: ""},
		{name: "verbose", shorthand: "v", defValue: "false"},
		{name: "app-data-dir", defValue: ""},
		{name: "resource-dir", defValue: ""},
		{name: "json", defValue: "false"},
	}

	for _, tt := range tests {
		flag := rootCmd.PersistentFlags().Lookup(tt.name)
		if !assert.NotNil(t, flag, "missing --%s", tt.name) {
			continue
		}
		assert.Equal(t, tt.shorthand, flag.Shorthand)
		assert.Equal(t, tt.defValue, flag.DefValue)
		assert.NotEmpty(t, flag.Usage)
	}

	assert.Contains(t, rootCmd.PersistentFlags().Lookup("config").Usage, "$HOME/.config/openusage")
}

func TestRootCommandHasSubcommands(t *testing.T) {
	// Not parallel - accesses global rootCmd
	names := func(cmds []*cobra.Command) map[string]bool {
		m := make(map[string]bool)
		for _, c := range cmds {
			m[strings.Fields(c.Use)[0]] = true
		}
		return m
	}

	root := names(rootCmd.Commands())
	for _, want := range []string{"plugins", "capabilities", "config", "version"} {
		assert.True(t, root[want], "missing %q subcommand", want)
	}

	plugins := names(pluginsCmd.Commands())
	for _, want := range []string{"list", "paths", "probe", "validate"} {
		assert.True(t, plugins[want], "missing plugins %q subcommand", want)
	}
}

func TestPluginsList_InstallsBundledDefaults(t *testing.T) {
	appData, resources := fixtureDirs(t)

	out, err := runCommand(t, "plugins", "list", "--json", "--app-data-dir", appData, "--resource-dir", resources)
	require.NoError(t, err)

	var info catalogInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "installed", info.Source)
	assert.Equal(t, filepath.Join(appData, "plugins"), info.Path)
	require.Len(t, info.Plugins, 2)
	assert.Equal(t, "alpha", info.Plugins[0].ID)
	assert.Equal(t, []string{"json.query"}, info.Plugins[0].Capabilities)
	assert.Equal(t, "beta", info.Plugins[1].ID)
	assert.Empty(t, info.Skipped)

	for _, f := range []string{"alpha/plugin.json", "alpha/plugin.lua", "beta/plugin.json", "beta/plugin.lua"} {
		assert.FileExists(t, filepath.Join(appData, "plugins", f))
	}
}

func TestPluginsList_Table(t *testing.T) {
	appData, resources := fixtureDirs(t)
	require.NoError(t, os.MkdirAll(filepath.Join(resources, "bundled_plugins", "broken"), 0o755))

	out, err := runCommand(t, "plugins", "list", "--app-data-dir", appData, "--resource-dir", resources)
	require.NoError(t, err)

	assert.Contains(t, out, "Found 2 plugin(s)")
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "json.query")
	assert.Contains(t, out, "Skipped 1 plugin(s)")
	assert.Contains(t, out, "broken")
}

func TestPluginsPaths(t *testing.T) {
	appData, resources := fixtureDirs(t)

	out, err := runCommand(t, "plugins", "paths", "--json", "--app-data-dir", appData, "--resource-dir", resources)
	require.NoError(t, err)

	var paths map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &paths))
	assert.Equal(t, "installed", paths["source"])
	assert.Equal(t, filepath.Join(resources, "bundled_plugins"), paths["bundled"])
	assert.Equal(t, appData, paths["app_data_dir"])
}

func TestPluginsProbe_JSON(t *testing.T) {
	appData, resources := fixtureDirs(t)

	out, err := runCommand(t, "plugins", "probe", "--json", "--app-data-dir", appData, "--resource-dir", resources)
	require.NoError(t, err)

	var outputs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &outputs))
	require.Len(t, outputs, 2)

	assert.Equal(t, "alpha", outputs[0]["providerId"])
	lines := outputs[0]["lines"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, map[string]any{"type": "progress", "label": "Requests", "value": 30.0, "max": 120.0}, lines[0])

	assert.Equal(t, "beta", outputs[1]["providerId"])
	assert.Equal(t, []any{map[string]any{"type": "text", "label": "Plan", "value": "Team"}}, outputs[1]["lines"])
}

func TestPluginsProbe_Text(t *testing.T) {
	appData, resources := fixtureDirs(t)

	out, err := runCommand(t, "plugins", "probe", "beta", "--app-data-dir", appData, "--resource-dir", resources)
	require.NoError(t, err)

	assert.Contains(t, out, "Beta")
	assert.Contains(t, out, "Team")
	assert.NotContains(t, out, "Alpha")
}

func TestPluginsProbe_UnknownPlugin(t *testing.T) {
	appData, resources := fixtureDirs(t)

	_, err := runCommand(t, "plugins", "probe", "gamma", "--app-data-dir", appData, "--resource-dir", resources)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"gamma" not found`)
}

func TestPluginsValidate(t *testing.T) {
	_, resources := fixtureDirs(t)

	out, err := runCommand(t, "plugins", "validate", filepath.Join(resources, "bundled_plugins", "alpha"))
	require.NoError(t, err)
	assert.Contains(t, out, "alpha 1.0.0 is valid")

	broken := t.TempDir()
	_, err = runCommand(t, "plugins", "validate", broken)
	require.Error(t, err)
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := runCommand(t, "capabilities", "--json")
	require.NoError(t, err)

	var got struct {
		APIVersion   string           `json:"api_version"`
		Capabilities []capabilityInfo `json:"capabilities"`
		Events       []string         `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.NotEmpty(t, got.APIVersion)
	assert.Len(t, got.Capabilities, 9)
	assert.Contains(t, got.Events, "refresh")
}

func TestConfigCommand(t *testing.T) {
	out, err := runCommand(t, "config", "--app-data-dir", "/srv/openusage")
	require.NoError(t, err)

	assert.Contains(t, out, "[runtime]")
	assert.Contains(t, out, "call_timeout")
	assert.Contains(t, out, "10s")
	assert.Contains(t, out, "/srv/openusage")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "openusage "+GetVersion())
}

func TestProgressBar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value, limit float64
		width        int
		want         string
	}{
		{value: 0, limit: 10, width: 4, want: "░░░░"},
		{value: 5, limit: 10, width: 4, want: "██░░"},
		{value: 10, limit: 10, width: 4, want: "████"},
		{value: 50, limit: 10, width: 4, want: "████"},
		{value: -1, limit: 10, width: 4, want: "░░░░"},
		{value: 1, limit: 0, width: 2, want: "░░"},
		{value: 1, limit: 1, width: 0, want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, progressBar(tt.value, tt.limit, tt.width))
	}
}

func TestRenderProbeOutputs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	renderProbeOutputs(&buf, []runtime.ProbeOutput{
		{ProviderID: "alpha", DisplayName: "Alpha", Lines: []runtime.MetricLine{
			{Type: runtime.LineProgress, Label: "Session", Value: 1, Max: 4, Unit: "h"},
			runtime.ErrorBadge("token expired"),
		}},
		{ProviderID: "beta", DisplayName: "Beta"},
	}, 8)

	out := buf.String()
	assert.Contains(t, out, "Alpha (alpha)")
	assert.Contains(t, out, "██░░░░░░ 1/4 h")
	assert.Contains(t, out, "[token expired]")
	assert.Contains(t, out, "no data")
}
