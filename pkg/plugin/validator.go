package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// idPattern matches valid plugin identities: lowercase, starting with a
// letter or digit, then letters, digits, '-', '_' or '.'.
var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Validate checks the required fields of m for the plugin in dir and returns
// the absolute entry point path.
func Validate(m *Manifest, dir string) (string, error) {
	dirName := filepath.Base(dir)

	if m.ID == "" {
		return "", ouerrors.NewManifestError(dirName, "id", "is required")
	}
	if !idPattern.MatchString(m.ID) {
		return "", ouerrors.NewManifestError(dirName, "id", fmt.Sprintf("%q is not a valid plugin id", m.ID))
	}

	if m.Version == "" {
		return "", ouerrors.NewManifestError(dirName, "version", "is required")
	}
	if _, err := semver.StrictNewVersion(strings.TrimPrefix(m.Version, "v")); err != nil {
		return "", ouerrors.NewManifestError(dirName, "version", fmt.Sprintf("%q must be valid semver", m.Version)).WithCause(err)
	}

	return resolveEntry(m, dir)
}

// resolveEntry confirms the entry point is a regular file inside dir.
func resolveEntry(m *Manifest, dir string) (string, error) {
	dirName := filepath.Base(dir)

	entry := m.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	if filepath.IsAbs(entry) {
		return "", ouerrors.NewManifestError(dirName, "entry", fmt.Sprintf("entry point %s must be relative", entry))
	}

	clean := filepath.Clean(entry)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ouerrors.NewManifestError(dirName, "entry", fmt.Sprintf("entry point %s escapes the plugin directory", entry))
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	path := filepath.Join(absDir, clean)

	info, err := os.Lstat(path)
	if err != nil {
		return "", ouerrors.NewManifestError(dirName, "entry", fmt.Sprintf("entry point %s does not exist", entry)).WithCause(err)
	}
	if !info.Mode().IsRegular() {
		return "", ouerrors.NewManifestError(dirName, "entry", fmt.Sprintf("entry point %s is not a regular file", entry))
	}

	return path, nil
}

// ValidateCompatibility checks the manifest's host requirement against the
// host API version. An empty requirement is always compatible.
func ValidateCompatibility(m *Manifest, dirName, hostVersion string) error {
	if m.Requirements.Host == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(m.Requirements.Host)
	if err != nil {
		return ouerrors.NewManifestError(dirName, "requirements.host", "invalid host version constraint").WithCause(err)
	}

	// Handle 'dev' version by assuming compatibility
	if hostVersion == "dev" || hostVersion == "" {
		return nil
	}

	v, err := semver.NewVersion(hostVersion)
	if err != nil {
		return ouerrors.NewManifestError(dirName, "requirements.host", fmt.Sprintf("invalid host version %q", hostVersion)).WithCause(err)
	}

	if !constraint.Check(v) {
		return ouerrors.NewManifestError(dirName, "requirements.host",
			fmt.Sprintf("plugin requires host API %s, but running %s", m.Requirements.Host, hostVersion))
	}

	return nil
}
