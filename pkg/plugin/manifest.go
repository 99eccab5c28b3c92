package plugin

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// ManifestFileNames lists the accepted manifest files in lookup order.
var ManifestFileNames = []string{
	"plugin.json",
	"manifest.json",
	"manifest.yaml",
	"manifest.yml",
}

// findManifest returns the first manifest file present in dir.
func findManifest(dir string) (string, bool) {
	for _, name := range ManifestFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}

// loadManifest reads and parses a manifest file. JSON manifests are decoded
// with encoding/json, everything else as YAML.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
			return nil, err
		}
		return &m, nil
	}

	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// readManifest locates and parses the manifest of the plugin in dir.
func readManifest(dir string) (*Manifest, error) {
	dirName := filepath.Base(dir)

	path, ok := findManifest(dir)
	if !ok {
		return nil, ouerrors.NewManifestError(dirName, "", "no manifest file found (expected one of "+strings.Join(ManifestFileNames, ", ")+")")
	}

	m, err := loadManifest(path)
	if err != nil {
		return nil, ouerrors.NewManifestError(dirName, "", "cannot parse "+filepath.Base(path)).WithCause(err)
	}
	return m, nil
}
