package runtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"openusage.dev/openusage/pkg/hostapi"
	"openusage.dev/openusage/pkg/plugin"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeLuaPlugin creates a plugin directory under root and loads it.
func writeLuaPlugin(t *testing.T, root, id string, caps []string, src string) *plugin.LoadedPlugin {
	t.Helper()

	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	if caps == nil {
		caps = []string{}
	}
	manifest, err := json.Marshal(map[string]any{
		"id":           id,
		"name":         id + " provider",
		"version":      "1.0.0",
		"entry":        "plugin.lua",
		"capabilities": caps,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), manifest, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.lua"), []byte(src), 0o644))

	p, err := plugin.NewLoader(quietLogger()).LoadPlugin(dir)
	require.NoError(t, err)
	return p
}

func newTextLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

func testSurface(opts ...hostapi.Option) *hostapi.Surface {
	return hostapi.NewSurface(append([]hostapi.Option{hostapi.WithLogger(quietLogger())}, opts...)...)
}

func testOptions() Options {
	return Options{Logger: quietLogger()}
}

// activeRuntime loads src as a plugin and activates it.
func activeRuntime(t *testing.T, surface *hostapi.Surface, id string, caps []string, src string, opts Options) *Runtime {
	t.Helper()
	p := writeLuaPlugin(t, t.TempDir(), id, caps, src)
	rt := New(p, surface, opts)
	require.NoError(t, rt.Activate(t.Context()))
	t.Cleanup(func() { _ = rt.Deactivate() })
	return rt
}
