package plugin

import (
	"openusage.dev/openusage/pkg/hostapi"
)

// Source identifies where the active plugin directory came from.
type Source string

const (
	// SourceDeveloperOverride is a non-empty plugins directory next to the
	// working directory. It is used verbatim and never installed into.
	SourceDeveloperOverride Source = "developer-override"
	// SourceInstalled is the host-owned install location under the app data dir.
	SourceInstalled Source = "installed"
	// SourceBundled means the bundled defaults are read in place because the
	// install location could not be created.
	SourceBundled Source = "bundled"
)

// Resolution is the plugin directory chosen for this process run. It is
// computed once and passed down by value.
type Resolution struct {
	Source Source
	Path   string

	// BundledPath is the bundled defaults directory that was found, if any.
	BundledPath string
}

// DefaultEntry is the entry point used when a manifest does not name one.
const DefaultEntry = "plugin.lua"

// Manifest represents a plugin declaration file (plugin.json or manifest.yaml).
type Manifest struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Version      string   `yaml:"version" json:"version"`
	Entry        string   `yaml:"entry" json:"entry"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	Author       string   `yaml:"author" json:"author,omitempty"`
	Requirements struct {
		Host string `yaml:"host" json:"host,omitempty"` // SemVer constraint on the host API version
	} `yaml:"requirements" json:"requirements"`
}

// LoadedPlugin is a validated manifest bound to its on-disk entry point.
// It is immutable once constructed.
type LoadedPlugin struct {
	id          string
	name        string
	version     string
	description string
	dir         string
	dirName     string
	entryPath   string
	permissions hostapi.PermissionSet
}

// ID returns the plugin's unique identity.
func (p *LoadedPlugin) ID() string { return p.id }

// Name returns the display name.
func (p *LoadedPlugin) Name() string { return p.name }

// Version returns the plugin's semantic version.
func (p *LoadedPlugin) Version() string { return p.version }

// Description returns the manifest description, possibly empty.
func (p *LoadedPlugin) Description() string { return p.description }

// Dir returns the absolute plugin directory.
func (p *LoadedPlugin) Dir() string { return p.dir }

// DirName returns the plugin's directory name, used in diagnostics.
func (p *LoadedPlugin) DirName() string { return p.dirName }

// EntryPath returns the absolute path of the entry point file.
func (p *LoadedPlugin) EntryPath() string { return p.entryPath }

// Permissions returns the capabilities granted from the manifest.
func (p *LoadedPlugin) Permissions() hostapi.PermissionSet { return p.permissions }

// SkippedPlugin records a plugin directory the loader rejected.
type SkippedPlugin struct {
	Dir string
	Err error
}

// Catalog is the result of one discovery pass. Plugins are in directory
// listing order.
type Catalog struct {
	Plugins []*LoadedPlugin
	Skipped []SkippedPlugin
}

// Lookup returns the plugin with the given id.
func (c *Catalog) Lookup(id string) (*LoadedPlugin, bool) {
	if c == nil {
		return nil, false
	}
	for _, p := range c.Plugins {
		if p.id == id {
			return p, true
		}
	}
	return nil, false
}

// IDs returns the ids of all loaded plugins in catalog order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Plugins))
	for _, p := range c.Plugins {
		ids = append(ids, p.id)
	}
	return ids
}

// Len returns the number of loaded plugins.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Plugins)
}
