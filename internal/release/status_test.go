package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/util"
)

func TestStatusConsistentManifests(t *testing.T) {
	f := newFixture(t)

	report, err := f.publisher(t, Options{}).Status(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "0.3.0", report.MarketplaceVersion)
	require.Len(t, report.Plugins, 2)
	assert.True(t, report.Consistent())

	st := report.Plugins[0]
	assert.Equal(t, "tommymorgan", st.Name)
	assert.Equal(t, "0.3.0", st.PluginVersion)
	assert.Equal(t, "v0.3.0", st.Tag)
	assert.False(t, st.RemoteChecked)
}

func TestStatusDetectsDrift(t *testing.T) {
	f := newFixture(t)
	f.edit(t, "other/.claude-plugin/plugin.json", `{"name": "other", "version": "1.3.0"}`)
	require.NoError(t, os.RemoveAll(filepath.Join(f.source, "tommymorgan", ".claude-plugin")))

	report, err := f.publisher(t, Options{}).Status(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, report.Consistent())

	byName := map[string]PluginStatus{}
	for _, st := range report.Plugins {
		byName[st.Name] = st
	}
	assert.True(t, byName["tommymorgan"].Missing)
	assert.False(t, byName["tommymorgan"].Consistent())
	assert.Equal(t, "1.3.0", byName["other"].PluginVersion)
	assert.Equal(t, "1.2.0", byName["other"].EntryVersion)
	assert.False(t, byName["other"].Consistent())
}

func TestStatusRemoteCheck(t *testing.T) {
	f := newFixture(t)
	f.edit(t, "tommymorgan/commands/plan.md", "changed\n")
	_, err := f.publisher(t, Options{}).Run(context.Background(), Request{Kind: "minor", Message: "release"})
	require.NoError(t, err)

	report, err := f.publisher(t, Options{}).Status(context.Background(), true)
	require.NoError(t, err)
	for _, st := range report.Plugins {
		assert.True(t, st.RemoteChecked, st.Name)
		switch st.Name {
		case "tommymorgan":
			assert.Equal(t, "v0.4.0", st.Tag)
			assert.True(t, st.OnRemote)
		case "other":
			assert.False(t, st.OnRemote)
		}
	}
}

func TestStatusErrors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.source, ".claude-plugin", "marketplace.json")))

	_, err := f.publisher(t, Options{}).Status(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, clierr.Validation, clierr.KindOf(err))
	assert.ErrorContains(t, err, "marketplace config not found")

	f = newFixture(t)
	util.Git(t, f.publish, "remote", "set-url", "origin", filepath.Join(t.TempDir(), "gone.git"))
	_, err = f.publisher(t, Options{}).Status(context.Background(), true)
	require.Error(t, err)
	assert.Equal(t, clierr.Network, clierr.KindOf(err))
}
