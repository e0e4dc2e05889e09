package e2e

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauern/plugin-publish/internal/manifest"
	"github.com/klauern/plugin-publish/internal/util"
)

// Fixture provides helpers for creating test fixtures in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// Dir returns the fixture base directory.
func (f *Fixture) Dir() string {
	return f.baseDir
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)
	util.WriteFile(f.t, fullPath, content)
	return fullPath
}

// WritePlugin writes <name>/.claude-plugin/plugin.json with version plus a
// README so the plugin has content to publish.
func (f *Fixture) WritePlugin(name, version string) {
	f.t.Helper()
	f.writeJSON(filepath.Join(name, ".claude-plugin", "plugin.json"), map[string]any{
		"name":        name,
		"version":     version,
		"description": "The " + name + " plugin",
	})
	f.WriteFile(filepath.Join(name, "README.md"), "# "+name+"\n")
}

// WriteMarketplace writes .claude-plugin/marketplace.json listing plugins
// (name to version). metadata.version is set to metaVersion.
func (f *Fixture) WriteMarketplace(metaVersion string, plugins map[string]string) {
	f.t.Helper()
	entries := make([]map[string]string, 0, len(plugins))
	for name, version := range plugins {
		entries = append(entries, map[string]string{
			"name":    name,
			"source":  "./" + name,
			"version": version,
		})
	}
	f.writeJSON(filepath.Join(".claude-plugin", "marketplace.json"), map[string]any{
		"name":     "test-marketplace",
		"metadata": map[string]string{"version": metaVersion},
		"plugins":  entries,
	})
}

func (f *Fixture) writeJSON(relPath string, v any) {
	f.t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		f.t.Fatalf("failed to encode %s: %v", relPath, err)
	}
	f.WriteFile(relPath, string(data)+"\n")
}

// PluginVersion reads the version from <name>/.claude-plugin/plugin.json.
func (f *Fixture) PluginVersion(name string) string {
	f.t.Helper()
	p, err := manifest.LoadPlugin(manifest.PluginPath(f.baseDir, name))
	if err != nil {
		f.t.Fatalf("failed to load plugin %s: %v", name, err)
	}
	return p.Version
}

// Marketplace loads .claude-plugin/marketplace.json.
func (f *Fixture) Marketplace() *manifest.Marketplace {
	f.t.Helper()
	m, err := manifest.LoadMarketplace(manifest.MarketplacePath(f.baseDir))
	if err != nil {
		f.t.Fatalf("failed to load marketplace: %v", err)
	}
	return m
}

// Git runs git in the fixture directory and returns trimmed output.
func (f *Fixture) Git(args ...string) string {
	f.t.Helper()
	return util.Git(f.t, f.baseDir, args...)
}

// Commit stages and commits everything.
func (f *Fixture) Commit(msg string) {
	f.t.Helper()
	util.CommitAll(f.t, f.baseDir, msg)
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	_, err := os.Stat(filepath.Join(f.baseDir, relPath))
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}
