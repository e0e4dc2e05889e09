// Package cli provides the command-line interface for publish.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/config"
	"github.com/klauern/plugin-publish/internal/logging"
	"github.com/klauern/plugin-publish/internal/release"
	"github.com/klauern/plugin-publish/internal/semver"
	"github.com/klauern/plugin-publish/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

// UsageLine is printed when the release arguments are missing.
const UsageLine = "Usage: publish <major|minor|patch> <commit-message>"

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	return RunWithWriters(ctx, args, os.Stdout, os.Stderr)
}

// RunWithWriters is Run with explicit output streams. Progress lines and
// summaries go to stdout; logs, progress bars and prompts go to stderr.
func RunWithWriters(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := &cli.Command{
		Name:      "publish",
		Usage:     "Release a changed Claude plugin to its publish repository",
		ArgsUsage: "<major|minor|patch> <commit-message>",
		Description: `Detects the one plugin changed in the source repository, bumps its
   version in plugin.json and marketplace.json, mirrors it into the publish
   repository, then commits, tags v<version>, pushes and verifies the tag.

   Versions below 1.0.0 never reach 1.0.0 automatically: a major bump of
   0.x.y yields 0.(x+1).0.

   Examples:
     publish minor "feat(plan): add new feature"
     publish --dry-run patch "fix: typo in review command"`,
		Version:   Version,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			configureColors(cmd)
			return ctx, configureLogging(cmd)
		},
		Action: publishAction,
		// Errors are reported by the caller; never exit from inside Run.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			detectCommand(),
			bumpCommand(),
			statusCommand(),
			configCommand(),
			versionCommand(),
		},
	}
	return app.Run(ctx, args)
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "Enable verbose output (info level logging)",
		},
		&cli.BoolFlag{
			Name:  "debug",
			Usage: "Enable debug output (debug level logging, implies verbose)",
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "Write logs as JSON",
		},
		&cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML or TOML config file",
		},
		&cli.StringFlag{
			Name:  "source-repo",
			Usage: "Repository holding the plugins and marketplace.json",
		},
		&cli.StringFlag{
			Name:  "publish-repo",
			Usage: "Repository the plugin is published to",
		},
		&cli.StringFlag{
			Name:  "remote",
			Usage: "Remote of the publish repository to push to",
		},
		&cli.StringFlag{
			Name:  "branch",
			Usage: "Branch of the publish repository to push",
		},
		&cli.StringFlag{
			Name:  "tag-prefix",
			Usage: "Prefix prepended to the version to form the tag",
		},
		&cli.StringFlag{
			Name:  "sync-backend",
			Usage: "How files are mirrored: native or rsync",
		},
		&cli.BoolFlag{
			Name:  "include-untracked",
			Usage: "Count untracked files when detecting the changed plugin",
		},
		&cli.BoolFlag{
			Name:    "dry-run",
			Aliases: []string{"n"},
			Usage:   "Show what would be published without writing anything",
		},
		&cli.BoolFlag{
			Name:  "confirm",
			Usage: "Ask for confirmation before writing anything",
		},
	}
}

// configureColors sets up color output based on CLI flags.
func configureColors(cmd *cli.Command) {
	if cmd.Bool("no-color") {
		ui.DisableColors()
	}
}

// configureLogging sets up the logging level based on CLI flags.
func configureLogging(cmd *cli.Command) error {
	opts := logging.DefaultOptions()
	opts.Output = cmd.Root().ErrWriter
	opts.JSON = cmd.Bool("log-json")

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if cmd.Bool("verbose") {
		opts.Level = slog.LevelInfo
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return nil
}

func publishAction(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 2 {
		return clierr.New(clierr.Usage, UsageLine)
	}
	kind, message := args.Get(0), args.Get(1)
	if _, err := semver.ParseKind(kind); err != nil {
		return clierr.Wrap(clierr.Usage, err, "")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	p, err := newPublisher(cmd, cfg)
	if err != nil {
		return err
	}

	_, err = p.Run(ctx, release.Request{
		Kind:    kind,
		Message: message,
		DryRun:  cmd.Bool("dry-run"),
	})
	return err
}

// readConfig loads the config file and applies flag overrides without
// validating the result.
func readConfig(cmd *cli.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, clierr.Wrap(clierr.Usage, err, "failed to load config")
	}

	if cmd.IsSet("source-repo") {
		cfg.Repos.Source = cmd.String("source-repo")
	}
	if cmd.IsSet("publish-repo") {
		cfg.Repos.Publish = cmd.String("publish-repo")
	}
	if cmd.IsSet("remote") {
		cfg.Git.Remote = cmd.String("remote")
	}
	if cmd.IsSet("branch") {
		cfg.Git.Branch = cmd.String("branch")
	}
	if cmd.IsSet("tag-prefix") {
		cfg.Git.TagPrefix = cmd.String("tag-prefix")
	}
	if cmd.IsSet("sync-backend") {
		cfg.Sync.Backend = cmd.String("sync-backend")
	}
	if cmd.IsSet("include-untracked") {
		cfg.Detection.IncludeUntracked = cmd.Bool("include-untracked")
	}
	if cmd.IsSet("confirm") {
		cfg.Output.Confirm = cmd.Bool("confirm")
	}
	return cfg, nil
}

// loadConfig returns the effective, validated configuration with absolute
// repository paths.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, clierr.Wrap(clierr.Usage, err, "failed to get working directory")
	}
	cfg.Resolve(wd)
	if err := cfg.Validate(); err != nil {
		return nil, clierr.Wrap(clierr.Usage, err, "invalid configuration")
	}

	if !cmd.Bool("no-color") {
		ui.ApplyColorMode(cfg.Output.Color)
	}
	logging.Debug("configuration loaded",
		slog.String("source", cfg.Repos.Source),
		slog.String("publish", cfg.Repos.Publish),
		logging.Remote(cfg.Git.Remote))
	return cfg, nil
}

func newPublisher(cmd *cli.Command, cfg *config.Config) (*release.Publisher, error) {
	root := cmd.Root()
	opts := release.Options{
		Out:    root.Writer,
		Logger: logging.Default(),
	}
	// Only a real stream gets a progress bar; buffers in tests stay clean.
	if f, ok := root.ErrWriter.(*os.File); ok {
		opts.Progress = f
	}
	if cfg.Output.Confirm {
		opts.Confirm = confirmPlan
	}
	return release.New(cfg, opts)
}

func confirmPlan(plan *release.Plan) (bool, error) {
	return ui.Confirm(
		fmt.Sprintf("Publish %s %s?", plan.Plugin, plan.Tag),
		"version: "+ui.Transition(plan.OldVersion, plan.NewVersion),
		"commit:  "+plan.Message,
		"target:  "+plan.PublishDir,
	)
}
