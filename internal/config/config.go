// Package config provides configuration management for plugin-publish.
// It supports YAML or TOML configuration files, environment variables, and
// sensible defaults, applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/plugin-publish/internal/detect"
	"github.com/klauern/plugin-publish/internal/mirror"
	"github.com/klauern/plugin-publish/internal/util"
)

// Environment variables recognised by applyEnvironment.
const (
	EnvConfig           = "PLUGIN_PUBLISH_CONFIG"
	EnvSourceRepo       = "PLUGIN_PUBLISH_SOURCE_REPO"
	EnvTargetRepo       = "PLUGIN_PUBLISH_TARGET_REPO"
	EnvGitRemote        = "PLUGIN_PUBLISH_GIT_REMOTE"
	EnvGitBranch        = "PLUGIN_PUBLISH_GIT_BRANCH"
	EnvTagPrefix        = "PLUGIN_PUBLISH_TAG_PREFIX"
	EnvSyncBackend      = "PLUGIN_PUBLISH_SYNC_BACKEND"
	EnvOutputColor      = "PLUGIN_PUBLISH_OUTPUT_COLOR"
	EnvIncludeUntracked = "PLUGIN_PUBLISH_INCLUDE_UNTRACKED"
)

// Config represents the complete plugin-publish configuration.
type Config struct {
	// Repos locates the source and publish repositories
	Repos ReposConfig `yaml:"repos" toml:"repos"`

	// Git configures remote, branch and tag naming in the publish repository
	Git GitConfig `yaml:"git" toml:"git"`

	// Detection configures which changed paths count toward a plugin
	Detection DetectionConfig `yaml:"detection" toml:"detection"`

	// Sync configures how the plugin tree is mirrored
	Sync SyncConfig `yaml:"sync" toml:"sync"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// ReposConfig holds repository locations. Paths may use ~ and $VARS.
type ReposConfig struct {
	// Source is the development repository containing plugin directories
	Source string `yaml:"source" toml:"source"`
	// Publish is the separate git work tree that receives releases
	Publish string `yaml:"publish" toml:"publish"`
}

// GitConfig holds publish-repository git settings.
type GitConfig struct {
	Remote    string `yaml:"remote" toml:"remote"`
	Branch    string `yaml:"branch" toml:"branch"`
	TagPrefix string `yaml:"tag_prefix" toml:"tag_prefix"`
	// AnnotateTags creates annotated tags carrying the commit message
	AnnotateTags bool `yaml:"annotate_tags" toml:"annotate_tags"`
}

// DetectionConfig holds changed-plugin detection settings.
type DetectionConfig struct {
	// Ignore holds patterns for top-level entries that are never plugins
	Ignore []string `yaml:"ignore" toml:"ignore"`
	// Exclude holds patterns for paths whose changes never count
	Exclude []string `yaml:"exclude" toml:"exclude"`
	// IncludeUntracked also counts files git does not track yet
	IncludeUntracked bool `yaml:"include_untracked" toml:"include_untracked"`
}

// SyncConfig holds mirror settings.
type SyncConfig struct {
	// Backend is "native" or "rsync"
	Backend string `yaml:"backend" toml:"backend"`
	// Exclude holds patterns that are never published and are pruned from the destination
	Exclude []string `yaml:"exclude" toml:"exclude"`
	// Protect holds patterns in the destination that are never copied nor deleted
	Protect []string `yaml:"protect" toml:"protect"`
	// CopyMarketplace also publishes the updated marketplace manifest
	CopyMarketplace bool `yaml:"copy_marketplace" toml:"copy_marketplace"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Confirm asks before mutating anything
	Confirm bool `yaml:"confirm" toml:"confirm"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Repos: ReposConfig{
			Source:  "~/src/claude-plugins",
			Publish: "~/src/claude-plugins-publish",
		},
		Git: GitConfig{
			Remote:    "origin",
			Branch:    "main",
			TagPrefix: "v",
		},
		Detection: DetectionConfig{
			Ignore:  slices.Clone(detect.DefaultIgnore),
			Exclude: slices.Clone(detect.DefaultExclude),
		},
		Sync: SyncConfig{
			Backend:         string(mirror.BackendNative),
			Exclude:         slices.Clone(mirror.DefaultExclude),
			Protect:         slices.Clone(mirror.DefaultProtect),
			CopyMarketplace: true,
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

const configFileName = "config.yaml"

// FilePath returns the path to the config file, honouring PLUGIN_PUBLISH_CONFIG.
func FilePath() string {
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return filepath.Join(util.ConfigDir(), configFileName)
}

// Load loads the configuration from the default location, merging with
// defaults. A missing default file is not an error.
func Load() (*Config, error) {
	path := FilePath()
	cfg, err := LoadFromPath(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && os.Getenv(EnvConfig) == "" {
			cfg = Default()
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are parsed as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// SaveToPath writes the configuration to path in YAML or TOML, chosen by extension.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var sb strings.Builder
		err = toml.NewEncoder(&sb).Encode(c)
		data = []byte(sb.String())
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	// #nosec G306 - config file should be readable by user
	return os.WriteFile(path, data, 0o644)
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern PLUGIN_PUBLISH_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	if v := os.Getenv(EnvSourceRepo); v != "" {
		c.Repos.Source = v
	}
	if v := os.Getenv(EnvTargetRepo); v != "" {
		c.Repos.Publish = v
	}
	if v := os.Getenv(EnvGitRemote); v != "" {
		c.Git.Remote = v
	}
	if v := os.Getenv(EnvGitBranch); v != "" {
		c.Git.Branch = v
	}
	if v, ok := os.LookupEnv(EnvTagPrefix); ok {
		c.Git.TagPrefix = v
	}
	if v := os.Getenv(EnvSyncBackend); v != "" {
		c.Sync.Backend = v
	}
	if v := os.Getenv(EnvOutputColor); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv(EnvIncludeUntracked); v != "" {
		c.Detection.IncludeUntracked = parseBool(v)
	}
}

// Resolve expands ~ and environment variables in the repository paths and
// makes them absolute against baseDir. It is called once at startup so the
// rest of the program works from fixed roots.
func (c *Config) Resolve(baseDir string) {
	c.Repos.Source = util.ExpandPath(c.Repos.Source, baseDir)
	c.Repos.Publish = util.ExpandPath(c.Repos.Publish, baseDir)
}

// Validate checks that the configuration is usable. All problems are
// reported in one line, separated by "; ".
func (c *Config) Validate() error {
	var problems []string
	if c.Repos.Source == "" {
		problems = append(problems, "repos.source must be set")
	}
	if c.Repos.Publish == "" {
		problems = append(problems, "repos.publish must be set")
	}
	if c.Repos.Source != "" && c.Repos.Source == c.Repos.Publish {
		problems = append(problems, "repos.source and repos.publish must differ")
	}
	if c.Git.Remote == "" {
		problems = append(problems, "git.remote must be set")
	}
	if c.Git.Branch == "" {
		problems = append(problems, "git.branch must be set")
	}
	if !mirror.Backend(c.Sync.Backend).IsValid() {
		problems = append(problems, fmt.Sprintf("sync.backend must be native or rsync, got %q", c.Sync.Backend))
	}
	switch c.Output.Color {
	case "auto", "always", "never":
	default:
		problems = append(problems, fmt.Sprintf("output.color must be auto, always or never, got %q", c.Output.Color))
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "; "))
}

// TagName returns the tag used for version.
func (c *Config) TagName(version string) string {
	return c.Git.TagPrefix + version
}

// Exists returns true if a config file exists at FilePath.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
