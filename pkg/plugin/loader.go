package plugin

import (
	"log/slog"
	"os"
	"path/filepath"

	"openusage.dev/openusage/pkg/hostapi"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// Loader turns an installation directory into a Catalog.
type Loader struct {
	// HostVersion is checked against each manifest's requirements.host.
	HostVersion string
	Logger      *slog.Logger
}

// NewLoader creates a loader for the current host API version.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{HostVersion: hostapi.APIVersion, Logger: logger}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Load scans the immediate subdirectories of dir. Invalid plugins are logged
// and recorded in Catalog.Skipped; Load itself never fails. A missing or
// unreadable dir yields an empty catalog.
func (l *Loader) Load(dir string) *Catalog {
	catalog := &Catalog{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger().Warn("cannot read plugins directory", "path", dir,
			"error", ouerrors.NewFilesystemError("readdir", dir, err))
		return catalog
	}

	firstDir := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(dir, entry.Name())
		p, err := l.LoadPlugin(pluginDir)
		if err == nil {
			if first, dup := firstDir[p.id]; dup {
				err = ouerrors.NewDuplicateIdentityError(p.id, entry.Name(), first)
			}
		}
		if err != nil {
			l.logger().Warn("skipping plugin", "dir", entry.Name(), "error", err)
			catalog.Skipped = append(catalog.Skipped, SkippedPlugin{Dir: entry.Name(), Err: err})
			continue
		}

		firstDir[p.id] = entry.Name()
		catalog.Plugins = append(catalog.Plugins, p)
		l.logger().Debug("loaded plugin", "id", p.id, "version", p.version, "dir", entry.Name())
	}

	return catalog
}

// LoadPlugin parses and validates the single plugin in dir.
func (l *Loader) LoadPlugin(dir string) (*LoadedPlugin, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}

	entryPath, err := Validate(m, dir)
	if err != nil {
		return nil, err
	}

	dirName := filepath.Base(dir)
	if err := ValidateCompatibility(m, dirName, l.HostVersion); err != nil {
		return nil, err
	}

	perms, unknown := hostapi.NewPermissionSet(m.Capabilities)
	if len(unknown) > 0 {
		l.logger().Warn("ignoring unknown capabilities", "plugin", m.ID, "capabilities", unknown)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	name := m.Name
	if name == "" {
		name = m.ID
	}

	return &LoadedPlugin{
		id:          m.ID,
		name:        name,
		version:     m.Version,
		description: m.Description,
		dir:         absDir,
		dirName:     dirName,
		entryPath:   entryPath,
		permissions: perms,
	}, nil
}
