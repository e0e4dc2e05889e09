// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It builds an isolated workspace with a source repository, a publish
// repository and a bare origin, and runs the CLI against it.
package e2e

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/klauern/plugin-publish/internal/cli"
	"github.com/klauern/plugin-publish/internal/clierr"
	"github.com/klauern/plugin-publish/internal/config"
	"github.com/klauern/plugin-publish/internal/util"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains progress lines and summaries.
	Stdout string
	// Stderr contains logs.
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is 0 on success and 1 for every error.
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Kind returns the error kind, or "" on success.
func (r *Result) Kind() clierr.Kind {
	return clierr.KindOf(r.Err)
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, the repositories, and output capture.
type Harness struct {
	t       *testing.T
	homeDir string

	// Source is the plugin development repository.
	Source *Fixture
	// Publish is the publish repository; Origin is its bare remote.
	Publish *Fixture
	Origin  string
}

// NewHarness creates a new E2E test harness. The source and publish
// repositories are initialised but empty; the configuration reaches the CLI
// through environment variables, the same way a CI job would set it.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	util.RequireGit(t)

	homeDir := t.TempDir()
	h := &Harness{
		t:       t,
		homeDir: homeDir,
		Origin:  filepath.Join(homeDir, "remotes", "publish.git"),
	}

	h.SetEnv("HOME", homeDir)
	h.SetEnv("XDG_CONFIG_HOME", filepath.Join(homeDir, ".config"))
	h.SetEnv(config.EnvConfig, "")

	h.Source = NewFixture(t, filepath.Join(homeDir, "src", "claude-plugins"))
	h.Publish = NewFixture(t, filepath.Join(homeDir, "src", "claude-plugins-publish"))
	util.InitRepo(t, h.Source.Dir())
	util.InitRepo(t, h.Publish.Dir())
	util.InitBareRepo(t, h.Origin)

	h.Publish.WriteFile("README.md", "# Published plugins\n")
	h.Publish.Commit("initial")
	h.Publish.Git("remote", "add", "origin", h.Origin)
	h.Publish.Git("push", "-q", "origin", "main")

	h.SetEnv(config.EnvSourceRepo, h.Source.Dir())
	h.SetEnv(config.EnvTargetRepo, h.Publish.Dir())
	h.SetEnv(config.EnvOutputColor, "never")

	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// OriginGit runs git in the bare origin.
func (h *Harness) OriginGit(args ...string) string {
	h.t.Helper()
	return util.Git(h.t, h.Origin, args...)
}

// Run executes a CLI command with the given arguments and captures the output.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()
	return h.RunContext(context.Background(), args...)
}

// RunContext is Run with a caller-controlled context.
func (h *Harness) RunContext(ctx context.Context, args ...string) *Result {
	h.t.Helper()

	// Prepend "publish" as the program name if not provided
	if len(args) == 0 || args[0] != "publish" {
		args = append([]string{"publish"}, args...)
	}

	var stdout, stderr bytes.Buffer
	err := cli.RunWithWriters(ctx, args, &stdout, &stderr)

	exitCode := 0
	if err != nil {
		exitCode = 1
		if ec, ok := err.(interface{ ExitCode() int }); ok {
			exitCode = ec.ExitCode()
		}
	}

	return &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      err,
		ExitCode: exitCode,
	}
}
