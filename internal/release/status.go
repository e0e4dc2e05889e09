package release

import (
	"context"
	"errors"
	"os"

	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/manifest"
)

// PluginStatus compares one marketplace entry with its plugin manifest.
type PluginStatus struct {
	Name          string
	PluginVersion string
	EntryVersion  string
	Tag           string
	// Missing is set when the plugin has no plugin.json.
	Missing bool
	// RemoteChecked is set when the remote was asked for Tag.
	RemoteChecked bool
	OnRemote      bool
}

// Consistent reports whether plugin.json and the marketplace entry agree.
func (s PluginStatus) Consistent() bool {
	return !s.Missing && s.PluginVersion == s.EntryVersion
}

// Report is the state of every plugin listed in the marketplace.
type Report struct {
	MarketplaceVersion string
	Plugins            []PluginStatus
}

// Consistent reports whether every listed plugin is consistent.
func (r *Report) Consistent() bool {
	for _, s := range r.Plugins {
		if !s.Consistent() {
			return false
		}
	}
	return true
}

// Status reads the source manifests and, when remoteCheck is set, asks the
// publish repository's remote whether each plugin's current tag exists.
// It never writes anything.
func (p *Publisher) Status(ctx context.Context, remoteCheck bool) (*Report, error) {
	source := p.cfg.Repos.Source
	path := manifest.MarketplacePath(source)
	mm, err := manifest.LoadMarketplace(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.Newf(clierr.Validation, "marketplace config not found: %s", path)
		}
		return nil, clierr.Wrap(clierr.Validation, err, "invalid marketplace config")
	}

	report := &Report{MarketplaceVersion: mm.MetadataVersion}
	for _, entry := range mm.Plugins {
		st := PluginStatus{Name: entry.Name, EntryVersion: entry.Version}
		pm, err := manifest.LoadPlugin(manifest.PluginPath(source, entry.Name))
		switch {
		case errors.Is(err, os.ErrNotExist):
			st.Missing = true
		case err != nil:
			return nil, clierr.Wrap(clierr.Validation, err, "invalid plugin config for %s", entry.Name)
		default:
			st.PluginVersion = pm.Version
			st.Tag = p.cfg.TagName(pm.Version)
		}

		if remoteCheck && !st.Missing {
			found, err := p.git.RemoteTagExists(ctx, p.cfg.Repos.Publish, p.cfg.Git.Remote, st.Tag)
			if err != nil {
				return nil, classify(clierr.Network, err, "failed to query %s", p.cfg.Git.Remote)
			}
			st.RemoteChecked = true
			st.OnRemote = found
		}
		report.Plugins = append(report.Plugins, st)
	}
	return report, nil
}
