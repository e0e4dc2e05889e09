package manifest

import (
	"errors"
	"fmt"
	"os"
)

// ErrPluginNotListed is returned when the marketplace has no entry for a plugin.
var ErrPluginNotListed = errors.New("plugin not listed in marketplace")

// MarketplaceEntry is one element of the marketplace "plugins" array.
type MarketplaceEntry struct {
	Name    string
	Version string
}

// Marketplace is the repository-wide marketplace.json.
type Marketplace struct {
	// MetadataVersion mirrors the version of the most recently published plugin.
	MetadataVersion string
	Plugins         []MarketplaceEntry

	doc      *Document
	metadata *Document
	entries  []*Document
}

// ParseMarketplace parses a marketplace manifest. It requires a
// metadata.version string and a plugins array whose entries carry a name.
func ParseMarketplace(data []byte) (*Marketplace, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}

	metadata, ok, err := doc.Object("metadata")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("metadata: %w", ErrMissingVersion)
	}
	metaVersion, ok, err := metadata.String("version")
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("metadata: %w", ErrMissingVersion)
	}

	entries, _, err := doc.Objects("plugins")
	if err != nil {
		return nil, err
	}

	m := &Marketplace{
		MetadataVersion: metaVersion,
		doc:             doc,
		metadata:        metadata,
		entries:         entries,
	}
	seen := make(map[string]bool, len(entries))
	for i, entry := range entries {
		name, ok, err := entry.String("name")
		if err != nil {
			return nil, fmt.Errorf("plugins[%d]: %w", i, err)
		}
		if !ok || name == "" {
			return nil, fmt.Errorf("plugins[%d]: missing name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("plugins[%d]: duplicate plugin %q", i, name)
		}
		seen[name] = true
		version, _, err := entry.String("version")
		if err != nil {
			return nil, fmt.Errorf("plugins[%d]: %w", i, err)
		}
		m.Plugins = append(m.Plugins, MarketplaceEntry{Name: name, Version: version})
	}
	return m, nil
}

// LoadMarketplace reads and parses the marketplace manifest at path.
func LoadMarketplace(path string) (*Marketplace, error) {
	// #nosec G304 - path is built from the configured source repository
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := ParseMarketplace(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// Entry returns the entry for plugin.
func (m *Marketplace) Entry(plugin string) (MarketplaceEntry, bool) {
	for _, e := range m.Plugins {
		if e.Name == plugin {
			return e, true
		}
	}
	return MarketplaceEntry{}, false
}

// SetVersion sets metadata.version and the version of the entry named
// plugin. Nothing is changed when the plugin is not listed.
func (m *Marketplace) SetVersion(plugin, version string) error {
	idx := -1
	for i, e := range m.Plugins {
		if e.Name == plugin {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrPluginNotListed, plugin)
	}

	if err := m.entries[idx].SetString("version", version); err != nil {
		return err
	}
	if err := m.doc.SetObjects("plugins", m.entries); err != nil {
		return err
	}
	if err := m.metadata.SetString("version", version); err != nil {
		return err
	}
	if err := m.doc.SetObject("metadata", m.metadata); err != nil {
		return err
	}

	m.Plugins[idx].Version = version
	m.MetadataVersion = version
	return nil
}

// Consistent reports whether metadata.version and the plugin's entry both equal version.
func (m *Marketplace) Consistent(plugin, version string) bool {
	e, ok := m.Entry(plugin)
	return ok && e.Version == version && m.MetadataVersion == version
}

// Bytes serializes the manifest with two-space indentation.
func (m *Marketplace) Bytes() ([]byte, error) {
	return m.doc.Bytes()
}
