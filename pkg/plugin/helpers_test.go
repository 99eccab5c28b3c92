package plugin

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writePlugin creates root/dir with a plugin.json for id and, when
// withEntry is set, a plugin.lua entry point.
func writePlugin(t *testing.T, root, dir, id string, withEntry bool) string {
	t.Helper()
	manifest := fmt.Sprintf(`{"id": %q, "name": %q, "version": "1.0.0", "entry": "plugin.lua", "capabilities": ["log"]}`, id, id)
	return writePluginManifest(t, root, dir, "plugin.json", manifest, withEntry)
}

func writePluginManifest(t *testing.T, root, dir, file, manifest string, withEntry bool) string {
	t.Helper()
	pluginDir := filepath.Join(root, dir)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pluginDir, file), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if withEntry {
		if err := os.WriteFile(filepath.Join(pluginDir, "plugin.lua"), []byte("function probe(ctx) return {lines = {}} end\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return pluginDir
}

// snapshot records every path under root with its size and mtime.
func snapshot(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out = append(out, fmt.Sprintf("%s %d %d", rel, info.Size(), info.ModTime().UnixNano()))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(out)
	return out
}
