package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pluginJSON = `{
  "name": "tommymorgan",
  "description": "Planning & review <workflow> commands",
  "version": "0.3.0",
  "author": {
    "name": "Tommy Morgan",
    "email": "tommy@example.com"
  },
  "keywords": ["planning", "review"]
}
`

const marketplaceJSON = `{
  "name": "tommymorgan-plugins",
  "owner": {"name": "Tommy Morgan"},
  "metadata": {
    "description": "Personal marketplace",
    "version": "0.3.0"
  },
  "plugins": [
    {"name": "other-plugin", "source": "./other-plugin", "version": "1.2.0"},
    {"name": "tommymorgan", "source": "./tommymorgan", "version": "0.3.0", "tags": ["x"]}
  ]
}
`

func TestParsePlugin(t *testing.T) {
	m, err := ParsePlugin([]byte(pluginJSON))
	require.NoError(t, err)
	assert.Equal(t, "tommymorgan", m.Name)
	assert.Equal(t, "0.3.0", m.Version)
}

func TestParsePluginErrors(t *testing.T) {
	tests := map[string]string{
		"invalid json":       `{"version": `,
		"array":              `["version"]`,
		"missing version":    `{"name": "x"}`,
		"non-string version": `{"version": 3}`,
		"empty":              ``,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePlugin([]byte(data))
			assert.Error(t, err)
		})
	}

	_, err := ParsePlugin([]byte(`{"name": "x"}`))
	assert.ErrorIs(t, err, ErrMissingVersion)
}

func TestPluginSetVersionPreservesOtherFields(t *testing.T) {
	m, err := ParsePlugin([]byte(pluginJSON))
	require.NoError(t, err)
	require.NoError(t, m.SetVersion("0.4.0"))

	out, err := m.Bytes()
	require.NoError(t, err)

	reparsed, err := ParsePlugin(out)
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", reparsed.Version)

	var before, after map[string]any
	require.NoError(t, json.Unmarshal([]byte(pluginJSON), &before))
	require.NoError(t, json.Unmarshal(out, &after))
	before["version"] = "0.4.0"
	assert.Equal(t, before, after)

	// Key order and unescaped characters survive.
	assert.Equal(t, []string{"name", "description", "version", "author", "keywords"}, docKeys(reparsed.doc))
	assert.Contains(t, string(out), "Planning & review <workflow> commands")
	assert.True(t, strings.HasSuffix(string(out), "}\n"))
}

func TestParseMarketplace(t *testing.T) {
	m, err := ParseMarketplace([]byte(marketplaceJSON))
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", m.MetadataVersion)
	require.Len(t, m.Plugins, 2)

	e, ok := m.Entry("tommymorgan")
	require.True(t, ok)
	assert.Equal(t, "0.3.0", e.Version)

	_, ok = m.Entry("missing")
	assert.False(t, ok)
	assert.True(t, m.Consistent("tommymorgan", "0.3.0"))
	assert.False(t, m.Consistent("other-plugin", "1.2.0"))
}

func TestParseMarketplaceErrors(t *testing.T) {
	tests := map[string]string{
		"no metadata":         `{"plugins": []}`,
		"no metadata version": `{"metadata": {}, "plugins": []}`,
		"plugins not array":   `{"metadata": {"version": "1.0.0"}, "plugins": {}}`,
		"entry without name":  `{"metadata": {"version": "1.0.0"}, "plugins": [{"version": "1.0.0"}]}`,
		"duplicate names":     `{"metadata": {"version": "1.0.0"}, "plugins": [{"name": "a"}, {"name": "a"}]}`,
		"entry not object":    `{"metadata": {"version": "1.0.0"}, "plugins": ["a"]}`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMarketplace([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestMarketplaceSetVersion(t *testing.T) {
	m, err := ParseMarketplace([]byte(marketplaceJSON))
	require.NoError(t, err)
	require.NoError(t, m.SetVersion("tommymorgan", "0.4.0"))

	out, err := m.Bytes()
	require.NoError(t, err)

	reparsed, err := ParseMarketplace(out)
	require.NoError(t, err)
	assert.Equal(t, "0.4.0", reparsed.MetadataVersion)
	assert.True(t, reparsed.Consistent("tommymorgan", "0.4.0"))

	other, _ := reparsed.Entry("other-plugin")
	assert.Equal(t, "1.2.0", other.Version, "other entries are untouched")

	var before, after map[string]any
	require.NoError(t, json.Unmarshal([]byte(marketplaceJSON), &before))
	require.NoError(t, json.Unmarshal(out, &after))
	before["metadata"].(map[string]any)["version"] = "0.4.0"
	before["plugins"].([]any)[1].(map[string]any)["version"] = "0.4.0"
	assert.Equal(t, before, after)

	assert.Equal(t, []string{"name", "owner", "metadata", "plugins"}, docKeys(reparsed.doc))
}

func TestMarketplaceSetVersionUnknownPlugin(t *testing.T) {
	m, err := ParseMarketplace([]byte(marketplaceJSON))
	require.NoError(t, err)

	err = m.SetVersion("ghost", "9.9.9")
	assert.ErrorIs(t, err, ErrPluginNotListed)
	assert.Equal(t, "0.3.0", m.MetadataVersion, "metadata untouched on error")
}

func TestMarketplaceEntryWithoutVersionGetsOne(t *testing.T) {
	m, err := ParseMarketplace([]byte(`{"metadata": {"version": "0.1.0"}, "plugins": [{"name": "a"}]}`))
	require.NoError(t, err)
	require.NoError(t, m.SetVersion("a", "0.2.0"))

	out, err := m.Bytes()
	require.NoError(t, err)
	reparsed, err := ParseMarketplace(out)
	require.NoError(t, err)
	assert.True(t, reparsed.Consistent("a", "0.2.0"))
}

func TestLoadFromDisk(t *testing.T) {
	root := t.TempDir()
	pluginPath := PluginPath(root, "tommymorgan")
	marketPath := MarketplacePath(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(pluginPath), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(marketPath), 0o755))
	require.NoError(t, os.WriteFile(pluginPath, []byte(pluginJSON), 0o644))
	require.NoError(t, os.WriteFile(marketPath, []byte(marketplaceJSON), 0o644))

	assert.Equal(t, filepath.Join(root, "tommymorgan", ".claude-plugin", "plugin.json"), pluginPath)

	p, err := LoadPlugin(pluginPath)
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", p.Version)

	m, err := LoadMarketplace(marketPath)
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", m.MetadataVersion)

	_, err = LoadPlugin(PluginPath(root, "missing"))
	assert.True(t, os.IsNotExist(err))
}

func TestDocumentRoundTripKeepsValues(t *testing.T) {
	src := `{"b": 1.50, "a": null, "c": [1, {"z": true}], "d": "é"}`
	doc, err := ParseDocument([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c", "d"}, docKeys(doc))

	out, err := doc.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"b":1.50,"a":null,"c":[1,{"z":true}],"d":"é"}`, string(out))
}

func docKeys(d *Document) []string {
	keys := make([]string, 0, d.fields.Len())
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}
