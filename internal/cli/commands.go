package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/config"
	"github.com/klauern/plugin-publish/internal/release"
	"github.com/klauern/plugin-publish/internal/semver"
	"github.com/klauern/plugin-publish/internal/ui"
)

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "Print the plugin that would be published",
		Description: `Inspects the source repository's working tree and prints the name of the
   one plugin with changes. Fails when no plugin or several plugins changed.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := rejectArgs(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := newPublisher(cmd, cfg)
			if err != nil {
				return err
			}
			plugin, err := p.Detect(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, plugin)
			return nil
		},
	}
}

func bumpCommand() *cli.Command {
	return &cli.Command{
		Name:      "bump",
		Usage:     "Print the version a bump would produce",
		ArgsUsage: "<major|minor|patch> <version>",
		Description: `Applies the release bump rules to a version without touching any file.

   Examples:
     publish bump minor 0.3.0   # 0.4.0
     publish bump major 0.9.2   # 0.10.0
     publish bump major 1.4.2   # 2.0.0`,
		Action: func(_ context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 2 {
				return clierr.New(clierr.Usage, "Usage: publish bump <major|minor|patch> <version>")
			}
			next, err := semver.BumpString(args.Get(1), args.Get(0))
			if err != nil {
				return clierr.Wrap(clierr.Usage, err, "")
			}
			fmt.Fprintln(cmd.Root().Writer, next)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Check that plugin.json and marketplace.json agree",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "remote-check",
				Usage: "Also check that each plugin's tag exists on the publish remote",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := rejectArgs(cmd); err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := newPublisher(cmd, cfg)
			if err != nil {
				return err
			}
			report, err := p.Status(ctx, cmd.Bool("remote-check"))
			if err != nil {
				return err
			}
			printReport(cmd, cfg, report)
			if !report.Consistent() {
				return clierr.New(clierr.Validation, "plugin versions are out of sync with marketplace.json")
			}
			return nil
		},
	}
}

func printReport(cmd *cli.Command, cfg *config.Config, report *release.Report) {
	w := cmd.Root().Writer
	fmt.Fprintf(w, "%s %s\n", ui.Bold("Marketplace version:"), report.MarketplaceVersion)
	for _, st := range report.Plugins {
		switch {
		case st.Missing:
			fmt.Fprintln(w, ui.StatusError(fmt.Sprintf("%s: plugin.json not found", st.Name)))
		case !st.Consistent():
			fmt.Fprintln(w, ui.StatusError(fmt.Sprintf("%s: plugin.json %s, marketplace.json %s",
				st.Name, st.PluginVersion, st.EntryVersion)))
		case st.RemoteChecked && !st.OnRemote:
			fmt.Fprintln(w, ui.StatusWarning(fmt.Sprintf("%s %s: tag %s not on %s",
				st.Name, st.PluginVersion, st.Tag, cfg.Git.Remote)))
		case st.RemoteChecked:
			fmt.Fprintln(w, ui.StatusSuccess(fmt.Sprintf("%s %s %s",
				st.Name, st.PluginVersion, ui.Dim("("+st.Tag+" on "+cfg.Git.Remote+")"))))
		default:
			fmt.Fprintln(w, ui.StatusSuccess(st.Name+" "+st.PluginVersion))
		}
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create the configuration file",
		Action: func(_ context.Context, cmd *cli.Command) error {
			if err := rejectArgs(cmd); err != nil {
				return err
			}
			return cli.ShowSubcommandHelp(cmd)
		},
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Print the effective configuration as YAML",
				Action: func(_ context.Context, cmd *cli.Command) error {
					cfg, err := readConfig(cmd)
					if err != nil {
						return err
					}
					data, err := yaml.Marshal(cfg)
					if err != nil {
						return fmt.Errorf("failed to encode config: %w", err)
					}
					_, err = cmd.Root().Writer.Write(data)
					return err
				},
			},
			{
				Name:  "path",
				Usage: "Print the configuration file location",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Fprintln(cmd.Root().Writer, configPath(cmd))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a default configuration file",
				Description: `Writes the default configuration to the config file location. A path
   ending in .toml is written as TOML, anything else as YAML.`,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					path := configPath(cmd)
					if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
						return clierr.Newf(clierr.Usage, "config file already exists: %s (use --force to overwrite)", path)
					} else if err != nil && !errors.Is(err, os.ErrNotExist) {
						return clierr.Wrap(clierr.Usage, err, "failed to check config file")
					}
					if err := config.Default().SaveToPath(path); err != nil {
						return clierr.Wrap(clierr.Usage, err, "failed to write config file")
					}
					fmt.Fprintln(cmd.Root().Writer, ui.StatusSuccess("Wrote "+filepath.Clean(path)))
					return nil
				},
			},
		},
	}
}

// rejectArgs fails when a command that takes no arguments is given some. The
// usual cause is a release whose bump kind is also a command name, as in
// `publish version "fix: typo"`.
func rejectArgs(cmd *cli.Command) error {
	if !cmd.Args().Present() {
		return nil
	}
	return clierr.Wrap(clierr.Usage, fmt.Errorf("%w (got %q)", semver.ErrInvalidKind, cmd.Name), "%s", UsageLine)
}

func configPath(cmd *cli.Command) string {
	if path := cmd.String("config"); path != "" {
		return path
	}
	return config.FilePath()
}
