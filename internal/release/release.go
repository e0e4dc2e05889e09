// Package release publishes a single changed plugin: it bumps the plugin's
// version in both manifests, mirrors the plugin into the publish repository,
// then commits, tags, pushes and verifies the tag on the remote.
//
// Every precondition is checked in Prepare before anything is written. Apply
// performs the side effects in order and stops at the first failure; local
// commits and tags are never rolled back.
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauern/plugin-publish/internal/atomicfile"
	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/config"
	"github.com/klauern/plugin-publish/internal/detect"
	"github.com/klauern/plugin-publish/internal/git"
	"github.com/klauern/plugin-publish/internal/logging"
	"github.com/klauern/plugin-publish/internal/manifest"
	"github.com/klauern/plugin-publish/internal/mirror"
	"github.com/klauern/plugin-publish/internal/semver"
	"github.com/klauern/plugin-publish/internal/ui"
)

// Request is one publish invocation.
type Request struct {
	Kind    string
	Message string
	DryRun  bool
}

// Plan is a fully validated release. Nothing has been written when a Plan exists.
type Plan struct {
	Plugin                string
	Kind                  semver.Kind
	Message               string
	OldVersion            string
	NewVersion            string
	OldMarketplaceVersion string
	OldEntryVersion       string
	Tag                   string

	// PluginDir is the plugin tree in the source repository.
	PluginDir string
	// PublishDir is where PluginDir is mirrored in the publish repository.
	PublishDir string
	// PluginManifest and MarketplaceManifest are the files rewritten.
	PluginManifest      string
	MarketplaceManifest string

	plugin      *manifest.Plugin
	marketplace *manifest.Marketplace
}

// Result describes a finished release.
type Result struct {
	Plan   *Plan
	Commit string
	Stats  *mirror.Stats
	DryRun bool
}

// ConfirmFunc is asked before Apply. Returning false cancels the release.
type ConfirmFunc func(*Plan) (bool, error)

// Options holds the collaborators of a Publisher. Zero values get defaults.
type Options struct {
	Git     git.Client
	Syncer  mirror.Syncer
	Tracker *atomicfile.Tracker
	// Out receives progress lines and the summary. Defaults to os.Stdout.
	Out io.Writer
	// Progress receives the mirror progress bar; nil disables it.
	Progress io.Writer
	// LookPath finds required tools. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
	Confirm  ConfirmFunc
	Logger   *slog.Logger
}

// Publisher runs releases for one configuration.
type Publisher struct {
	cfg      *config.Config
	git      git.Client
	syncer   mirror.Syncer
	tracker  *atomicfile.Tracker
	out      io.Writer
	lookPath func(string) (string, error)
	confirm  ConfirmFunc
	logger   *slog.Logger
	detector *detect.Detector
}

// New creates a Publisher. cfg must already be resolved to absolute paths.
func New(cfg *config.Config, opts Options) (*Publisher, error) {
	p := &Publisher{
		cfg:      cfg,
		git:      opts.Git,
		syncer:   opts.Syncer,
		tracker:  opts.Tracker,
		out:      opts.Out,
		lookPath: opts.LookPath,
		confirm:  opts.Confirm,
		logger:   opts.Logger,
		detector: &detect.Detector{
			Ignore:  cfg.Detection.Ignore,
			Exclude: cfg.Detection.Exclude,
		},
	}
	if p.git == nil {
		p.git = git.NewShellClient()
	}
	if p.tracker == nil {
		p.tracker = atomicfile.NewTracker()
	}
	if p.out == nil {
		p.out = os.Stdout
	}
	if p.lookPath == nil {
		p.lookPath = exec.LookPath
	}
	if p.logger == nil {
		p.logger = logging.Default()
	}
	if p.syncer == nil {
		s, err := mirror.New(mirror.Options{
			Backend:  mirror.Backend(cfg.Sync.Backend),
			Filter:   mirror.Filter{Exclude: cfg.Sync.Exclude, Protect: cfg.Sync.Protect},
			Tracker:  p.tracker,
			Progress: opts.Progress,
		})
		if err != nil {
			return nil, clierr.Wrap(clierr.Usage, err, "invalid sync configuration")
		}
		p.syncer = s
	}
	return p, nil
}

// Tracker returns the temp-file tracker shared by manifest writes and the mirror.
func (p *Publisher) Tracker() *atomicfile.Tracker {
	return p.tracker
}

// Run validates req, asks for confirmation when configured, and applies the
// release. Temporary files are removed on every return path.
func (p *Publisher) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx = logging.NewContext(ctx, p.logger)
	defer func() {
		if err := p.tracker.Cleanup(); err != nil {
			p.logger.Warn("failed to remove temporary files", logging.Err(err))
		}
	}()

	plan, err := p.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return p.dryRun(ctx, plan)
	}

	if p.confirm != nil {
		ok, err := p.confirm(plan)
		if err != nil {
			if errors.Is(err, ui.ErrNotInteractive) {
				return nil, clierr.Wrap(clierr.Usage, err, "cannot confirm release")
			}
			return nil, clierr.Wrap(clierr.Canceled, err, "confirmation failed")
		}
		if !ok {
			return nil, clierr.New(clierr.Canceled, "publish canceled")
		}
	}

	res, err := p.Apply(ctx, plan)
	if err != nil {
		return nil, err
	}
	p.logger.Info("release finished", logging.Tag(plan.Tag), logging.Duration(time.Since(start)))
	return res, nil
}

// Prepare checks every precondition and computes the release without
// modifying any file or repository.
func (p *Publisher) Prepare(ctx context.Context, req Request) (*Plan, error) {
	log := p.logger.With(logging.Operation("prepare"))
	if err := ctx.Err(); err != nil {
		return nil, clierr.Wrap(clierr.Canceled, err, "interrupted")
	}

	p.step("Checking dependencies...")
	if err := p.checkTools(); err != nil {
		return nil, err
	}
	p.success("Dependencies available")

	kind, err := semver.ParseKind(req.Kind)
	if err != nil {
		return nil, clierr.Wrap(clierr.Usage, err, "")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, clierr.New(clierr.Usage, "commit message must not be empty")
	}

	source := p.cfg.Repos.Source
	p.step("Detecting changed plugin...")
	if !p.git.IsWorkTree(ctx, source) {
		return nil, clierr.Newf(clierr.Validation, "source repo not found: %s", source)
	}
	plugin, err := p.Detect(ctx)
	if err != nil {
		return nil, err
	}
	p.success("Detected plugin: " + ui.Bold(plugin))
	log = log.With(logging.Plugin(plugin))

	pluginManifest := manifest.PluginPath(source, plugin)
	pm, err := manifest.LoadPlugin(pluginManifest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.Newf(clierr.Validation, "plugin config not found: %s", pluginManifest)
		}
		return nil, clierr.Wrap(clierr.Validation, err, "invalid plugin config")
	}

	marketplaceManifest := manifest.MarketplacePath(source)
	mm, err := manifest.LoadMarketplace(marketplaceManifest)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, clierr.Newf(clierr.Validation, "marketplace config not found: %s", marketplaceManifest)
		}
		return nil, clierr.Wrap(clierr.Validation, err, "invalid marketplace config")
	}
	entry, ok := mm.Entry(plugin)
	if !ok {
		return nil, clierr.Newf(clierr.Validation, "plugin %s is not listed in %s", plugin, marketplaceManifest)
	}

	p.step("Computing version...")
	next, err := semver.BumpString(pm.Version, string(kind))
	if err != nil {
		return nil, clierr.Wrap(clierr.Validation, err, "cannot bump %s", pluginManifest)
	}
	tag := p.cfg.TagName(next)
	p.success(fmt.Sprintf("Version: %s (%s)", ui.Transition(pm.Version, next), ui.Title(string(kind))))
	log = log.With(logging.Version(next), logging.Tag(tag))

	publish := p.cfg.Repos.Publish
	if !p.git.IsWorkTree(ctx, publish) {
		return nil, clierr.Newf(clierr.Validation, "publish repo not found: %s", publish)
	}
	exists, err := p.git.TagExists(ctx, publish, tag)
	if err != nil {
		return nil, clierr.Wrap(clierr.Validation, err, "failed to check tag %s", tag)
	}
	if exists {
		return nil, clierr.Newf(clierr.Validation, "tag already exists: %s", tag)
	}
	branch, err := p.git.CurrentBranch(ctx, publish)
	if err != nil {
		return nil, clierr.Wrap(clierr.Validation, err, "failed to read publish repo branch")
	}
	if branch != p.cfg.Git.Branch {
		return nil, clierr.Newf(clierr.Validation, "publish repo is on branch %q, expected %q", branch, p.cfg.Git.Branch)
	}

	log.Info("release prepared")
	return &Plan{
		Plugin:                plugin,
		Kind:                  kind,
		Message:               req.Message,
		OldVersion:            pm.Version,
		NewVersion:            next,
		OldMarketplaceVersion: mm.MetadataVersion,
		OldEntryVersion:       entry.Version,
		Tag:                   tag,
		PluginDir:             filepath.Join(source, plugin),
		PublishDir:            filepath.Join(publish, plugin),
		PluginManifest:        pluginManifest,
		MarketplaceManifest:   marketplaceManifest,
		plugin:                pm,
		marketplace:           mm,
	}, nil
}

// Detect returns the single plugin changed in the source repository.
func (p *Publisher) Detect(ctx context.Context) (string, error) {
	source := p.cfg.Repos.Source
	prefix, err := p.git.ShowPrefix(ctx, source)
	if err != nil {
		return "", clierr.Wrap(clierr.Validation, err, "failed to locate source repo")
	}
	paths, err := p.git.ChangedFiles(ctx, source, p.cfg.Detection.IncludeUntracked)
	if err != nil {
		return "", clierr.Wrap(clierr.Validation, err, "failed to list changes")
	}
	p.logger.Debug("changed files", logging.Count(len(paths)))

	plugin, err := p.detector.Single(paths, prefix)
	var multi *detect.MultipleError
	switch {
	case errors.Is(err, detect.ErrNoChanges):
		return "", clierr.New(clierr.Validation, "No plugin changes detected. Make changes to a plugin first")
	case errors.As(err, &multi):
		return "", clierr.Newf(clierr.Validation,
			"Multiple plugins changed: %s. Please publish plugins separately",
			strings.Join(multi.Plugins, ", ")).
			WithDetails(map[string]any{"plugins": multi.Plugins})
	case err != nil:
		return "", clierr.Wrap(clierr.Validation, err, "failed to detect plugin")
	}
	return plugin, nil
}

// Apply performs the release described by plan.
func (p *Publisher) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	log := p.logger.With(logging.Plugin(plan.Plugin), logging.Tag(plan.Tag))
	publish := p.cfg.Repos.Publish
	remote := p.cfg.Git.Remote

	p.step("Updating manifests...")
	if err := p.writeManifests(plan); err != nil {
		return nil, err
	}

	p.step("Syncing files to publish repo...")
	stats, err := p.syncer.Sync(ctx, plan.PluginDir, plan.PublishDir)
	if err != nil {
		return nil, classify(clierr.Mutation, err, "failed to sync plugin files")
	}
	if stats.Total() == 0 {
		p.skipped("Plugin files already up to date in " + plan.PublishDir)
	} else {
		p.success("Synced " + plan.Plugin + ": " + stats.String())
	}
	if p.cfg.Sync.CopyMarketplace {
		dst := manifest.MarketplacePath(publish)
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return nil, clierr.Wrap(clierr.Mutation, err, "failed to publish marketplace config")
		}
		if err := p.tracker.CopyFile(dst, plan.MarketplaceManifest); err != nil {
			return nil, clierr.Wrap(clierr.Mutation, err, "failed to publish marketplace config")
		}
		p.success("Published marketplace.json")
	}

	p.step("Creating commit and tag...")
	if err := p.git.AddAll(ctx, publish); err != nil {
		return nil, classify(clierr.Mutation, err, "failed to stage changes")
	}
	staged, err := p.git.HasStagedChanges(ctx, publish)
	if err != nil {
		return nil, classify(clierr.Mutation, err, "failed to stage changes")
	}
	if !staged {
		return nil, clierr.New(clierr.Mutation, "nothing to commit in publish repo").
			WithDetails(map[string]any{"synced": stats.Total()})
	}
	if err := p.git.Commit(ctx, publish, plan.Message); err != nil {
		return nil, classify(clierr.Mutation, err, "failed to commit")
	}
	commit, err := p.git.HeadCommit(ctx, publish)
	if err != nil {
		return nil, classify(clierr.Mutation, err, "failed to read commit")
	}
	p.success("Created commit " + shortHash(commit))

	tagMessage := ""
	if p.cfg.Git.AnnotateTags {
		tagMessage = plan.Message
	}
	if err := p.git.Tag(ctx, publish, plan.Tag, tagMessage); err != nil {
		return nil, classify(clierr.Mutation, err, "failed to create tag %s", plan.Tag)
	}
	p.success("Created tag " + plan.Tag)

	p.step(fmt.Sprintf("Pushing to %s...", remote))
	if err := p.git.Push(ctx, publish, remote, p.cfg.Git.Branch); err != nil {
		return nil, classify(clierr.Network, err, "failed to push commit")
	}
	p.success("Pushed " + p.cfg.Git.Branch)
	if err := p.git.Push(ctx, publish, remote, "refs/tags/"+plan.Tag); err != nil {
		return nil, classify(clierr.Network, err, "failed to push tag")
	}
	p.success("Pushed tag " + plan.Tag)

	p.step("Verifying tag on remote...")
	found, err := p.git.RemoteTagExists(ctx, publish, remote, plan.Tag)
	if err != nil {
		return nil, classify(clierr.Network, err, "tag not found on remote")
	}
	if !found {
		return nil, clierr.Newf(clierr.Network, "tag not found on remote: %s on %s", plan.Tag, remote)
	}
	p.success(fmt.Sprintf("Tag %s found on %s", plan.Tag, remote))

	log.Info("release published", logging.Version(plan.NewVersion))
	res := &Result{Plan: plan, Commit: commit, Stats: stats}
	p.summary(res)
	return res, nil
}

func (p *Publisher) writeManifests(plan *Plan) error {
	if err := plan.plugin.SetVersion(plan.NewVersion); err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update plugin config")
	}
	data, err := plan.plugin.Bytes()
	if err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update plugin config")
	}
	if err := p.tracker.WriteFile(plan.PluginManifest, data, 0o644); err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update plugin config")
	}
	p.success("Updated plugin.json: " + ui.Transition(plan.OldVersion, plan.NewVersion))

	if err := plan.marketplace.SetVersion(plan.Plugin, plan.NewVersion); err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update marketplace config")
	}
	data, err = plan.marketplace.Bytes()
	if err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update marketplace config")
	}
	if err := p.tracker.WriteFile(plan.MarketplaceManifest, data, 0o644); err != nil {
		return clierr.Wrap(clierr.Mutation, err, "failed to update marketplace config")
	}
	p.success("Updated marketplace.json: " + ui.Transition(plan.OldMarketplaceVersion, plan.NewVersion))
	return nil
}

func (p *Publisher) dryRun(ctx context.Context, plan *Plan) (*Result, error) {
	stats, err := p.syncer.Preview(ctx, plan.PluginDir, plan.PublishDir)
	if err != nil {
		return nil, classify(clierr.Validation, err, "failed to plan sync")
	}
	p.skipped("Dry run: no files, commits or tags were written")
	rows := make([]ui.ChangeRow, 0, len(stats.Changes))
	for _, c := range stats.Changes {
		path := c.Path
		if c.Dir {
			path += "/"
		}
		rows = append(rows, ui.ChangeRow{Op: string(c.Op), Path: path})
	}
	fmt.Fprintln(p.out, ui.RenderChanges(rows, ui.TerminalWidth(100)))
	res := &Result{Plan: plan, Stats: stats, DryRun: true}
	p.summary(res)
	return res, nil
}

func (p *Publisher) summary(res *Result) {
	plan := res.Plan
	title := fmt.Sprintf("Published %s %s", plan.Plugin, plan.Tag)
	if res.DryRun {
		title = fmt.Sprintf("Would publish %s %s", plan.Plugin, plan.Tag)
	}
	s := &ui.Summary{Title: title, Width: ui.TerminalWidth(100) - 4}
	s.Add("plugin.json", ui.Transition(plan.OldVersion, plan.NewVersion)).
		Add("marketplace.json", ui.Transition(plan.OldMarketplaceVersion, plan.NewVersion)).
		Add("Tag", plan.Tag).
		Add("Message", plan.Message).
		Add("Release", plan.Plugin+"@"+plan.NewVersion)
	if res.Commit != "" {
		s.Add("Commit", shortHash(res.Commit))
	}
	if res.Stats != nil {
		s.Add("Files", res.Stats.String())
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, s.Render())
}

func (p *Publisher) checkTools() error {
	tools := append([]string{"git"}, mirror.RequiredTools(mirror.Backend(p.cfg.Sync.Backend))...)
	for _, tool := range tools {
		if _, err := p.lookPath(tool); err != nil {
			return clierr.Newf(clierr.Validation, "%s required but not installed", tool)
		}
	}
	return nil
}

func (p *Publisher) step(msg string) {
	fmt.Fprintln(p.out, ui.StatusStep(msg))
}

func (p *Publisher) success(msg string) {
	fmt.Fprintln(p.out, ui.StatusSuccess(msg))
}

func (p *Publisher) skipped(msg string) {
	fmt.Fprintln(p.out, ui.StatusSkipped(msg))
}

// classify wraps err with kind, or with Canceled when the run was interrupted.
func classify(kind clierr.Kind, err error, format string, args ...any) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = clierr.Canceled
	}
	return clierr.Wrap(kind, err, format, args...)
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}
