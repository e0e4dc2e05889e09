// Package manifest reads and rewrites the two JSON manifests a release
// touches: a plugin's .claude-plugin/plugin.json and the repository-wide
// .claude-plugin/marketplace.json.
//
// Only the version-bearing fields are modelled; every other field is kept in
// an ordered Document and written back unchanged.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataDir is the hidden directory holding plugin and marketplace manifests.
const MetadataDir = ".claude-plugin"

const (
	pluginFile      = "plugin.json"
	marketplaceFile = "marketplace.json"
)

// ErrMissingVersion is returned when a manifest has no version field.
var ErrMissingVersion = errors.New("missing version")

// PluginPath returns the manifest path of plugin inside the source repo root.
func PluginPath(root, plugin string) string {
	return filepath.Join(root, plugin, MetadataDir, pluginFile)
}

// MarketplacePath returns the marketplace manifest path inside root.
func MarketplacePath(root string) string {
	return filepath.Join(root, MetadataDir, marketplaceFile)
}

// Plugin is a plugin's plugin.json.
type Plugin struct {
	Name    string
	Version string

	doc *Document
}

// ParsePlugin parses a plugin manifest. The top-level "version" string is required.
func ParsePlugin(data []byte) (*Plugin, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	version, ok, err := doc.String("version")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMissingVersion
	}
	name, _, err := doc.String("name")
	if err != nil {
		return nil, err
	}
	return &Plugin{Name: name, Version: version, doc: doc}, nil
}

// LoadPlugin reads and parses the plugin manifest at path.
func LoadPlugin(path string) (*Plugin, error) {
	// #nosec G304 - path is built from the configured source repository
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParsePlugin(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// SetVersion updates the manifest version.
func (p *Plugin) SetVersion(version string) error {
	if err := p.doc.SetString("version", version); err != nil {
		return err
	}
	p.Version = version
	return nil
}

// Bytes serializes the manifest with two-space indentation.
func (p *Plugin) Bytes() ([]byte, error) {
	return p.doc.Bytes()
}
