package plugin

import (
	"log/slog"
	"os"
	"path/filepath"
)

// PluginsDirName is the directory name used for the developer override and
// the install location.
const PluginsDirName = "plugins"

// Resolver decides which directory plugins are discovered from.
//
// Priority, first match wins:
//  1. a non-empty "plugins" directory in WorkDir or its parent (developer override)
//  2. <AppDataDir>/plugins, created if missing (installed)
//
// When the install location cannot be created, the bundled defaults are
// read in place if they exist.
type Resolver struct {
	AppDataDir  string
	ResourceDir string

	// WorkDir is the directory the override lookup starts from. Empty means
	// the process working directory.
	WorkDir string

	// DevOverride enables the developer override lookup.
	DevOverride bool

	Logger *slog.Logger
}

// NewResolver creates a resolver with the developer override enabled.
func NewResolver(appDataDir, resourceDir string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		AppDataDir:  appDataDir,
		ResourceDir: resourceDir,
		DevOverride: true,
		Logger:      logger,
	}
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Resolve picks the active plugin directory. It never fails: filesystem
// problems are logged and degrade to a directory that yields an empty catalog.
func (r *Resolver) Resolve() Resolution {
	bundled, _ := r.BundledDir()

	if r.DevOverride {
		if dir, ok := r.devOverrideDir(); ok {
			r.logger().Info("using developer plugins directory", "path", dir)
			return Resolution{Source: SourceDeveloperOverride, Path: dir, BundledPath: bundled}
		}
	}

	installDir := filepath.Join(r.AppDataDir, PluginsDirName)
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		r.logger().Warn("failed to create plugins directory", "path", installDir, "error", err)
		if bundled != "" {
			return Resolution{Source: SourceBundled, Path: bundled, BundledPath: bundled}
		}
	}

	return Resolution{Source: SourceInstalled, Path: installDir, BundledPath: bundled}
}

// BundledDir returns the bundled defaults directory, checking
// <ResourceDir>/resources/bundled_plugins before <ResourceDir>/bundled_plugins.
func (r *Resolver) BundledDir() (string, bool) {
	if r.ResourceDir == "" {
		return "", false
	}
	candidates := []string{
		filepath.Join(r.ResourceDir, "resources", "bundled_plugins"),
		filepath.Join(r.ResourceDir, "bundled_plugins"),
	}
	for _, c := range candidates {
		if isDir(c) {
			return c, true
		}
	}
	return "", false
}

func (r *Resolver) devOverrideDir() (string, bool) {
	wd := r.WorkDir
	if wd == "" {
		var err error
		wd, err = os.Getwd()
		if err != nil {
			r.logger().Debug("cannot determine working directory", "error", err)
			return "", false
		}
	}

	candidates := []string{
		filepath.Join(wd, PluginsDirName),
		filepath.Join(wd, "..", PluginsDirName),
	}
	for _, c := range candidates {
		if isDir(c) && !isDirEmpty(c) {
			abs, err := filepath.Abs(c)
			if err != nil {
				abs = filepath.Clean(c)
			}
			return abs, true
		}
		if isDir(c) {
			r.logger().Debug("ignoring empty developer plugins directory", "path", c)
		}
	}
	return "", false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isDirEmpty reports whether dir has no entries. Unreadable directories
// count as empty.
func isDirEmpty(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return true
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	return err != nil || len(names) == 0
}
