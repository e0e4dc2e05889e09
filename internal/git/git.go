// Package git wraps the git command line for the source and publish
// repositories.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/klauern/plugin-publish/internal/logging"
)

// Client provides the git operations a release needs. Every method takes
// the working directory of the repository it acts on.
type Client interface {
	// IsWorkTree reports whether dir is inside a git working tree.
	IsWorkTree(ctx context.Context, dir string) bool
	// ShowPrefix returns dir relative to the top of its work tree ("" at the top).
	ShowPrefix(ctx context.Context, dir string) (string, error)
	// ChangedFiles lists paths, relative to the work tree top, that differ
	// between HEAD and the working tree.
	ChangedFiles(ctx context.Context, dir string, includeUntracked bool) ([]string, error)
	// CurrentBranch returns the checked out branch, or "" when HEAD is detached.
	CurrentBranch(ctx context.Context, dir string) (string, error)
	// TagExists reports whether tag exists locally.
	TagExists(ctx context.Context, dir, tag string) (bool, error)
	// AddAll stages every change, including deletions.
	AddAll(ctx context.Context, dir string) error
	// HasStagedChanges reports whether the index differs from HEAD.
	HasStagedChanges(ctx context.Context, dir string) (bool, error)
	// Commit records the index with message exactly as given.
	Commit(ctx context.Context, dir, message string) error
	// Tag creates tag at HEAD. A non-empty message makes it annotated.
	Tag(ctx context.Context, dir, tag, message string) error
	// Push pushes refspec to remote.
	Push(ctx context.Context, dir, remote, refspec string) error
	// RemoteTagExists asks remote whether it has tag.
	RemoteTagExists(ctx context.Context, dir, remote, tag string) (bool, error)
	// HeadCommit returns the full hash of HEAD.
	HeadCommit(ctx context.Context, dir string) (string, error)
}

// ShellClient implements Client by shelling out to the git command.
type ShellClient struct {
	// Binary is the git executable. Defaults to "git".
	Binary string
}

// NewShellClient creates a new git client that uses the git command.
func NewShellClient() *ShellClient {
	return &ShellClient{Binary: "git"}
}

// CommandError is returned when git exits unsuccessfully.
type CommandError struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.ReplaceAll(e.Stderr, "\n", "; ")
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// exitCode returns git's exit status for err, or -1 when git did not run.
func exitCode(err error) int {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ExitCode
	}
	return -1
}

// run executes git -C dir args... and returns stdout.
func (c *ShellClient) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	bin := c.Binary
	if bin == "" {
		bin = "git"
	}
	full := append([]string{"-C", dir}, args...)

	// #nosec G204 - arguments are built by this package, not a shell
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.WithContext(ctx).Debug("running git", logging.Operation(args[0]), logging.Path(dir))
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		code := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		return stdout.Bytes(), &CommandError{
			Args:     args,
			ExitCode: code,
			Stderr:   strings.TrimSpace(stderr.String()),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// IsWorkTree reports whether dir is inside a git working tree.
func (c *ShellClient) IsWorkTree(ctx context.Context, dir string) bool {
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return false
	}
	out, err := c.run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// ShowPrefix returns dir relative to the work tree top, without a trailing slash.
func (c *ShellClient) ShowPrefix(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", "--show-prefix")
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSpace(string(out)), "/"), nil
}

// ChangedFiles lists tracked paths that differ from HEAD, staged or not, and
// optionally untracked files that are not ignored.
func (c *ShellClient) ChangedFiles(ctx context.Context, dir string, includeUntracked bool) ([]string, error) {
	out, err := c.run(ctx, dir, "diff", "--name-only", "-z", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("list changed files: %w", err)
	}
	paths := splitNUL(out)

	if includeUntracked {
		out, err := c.run(ctx, dir, "ls-files", "--others", "--exclude-standard", "--full-name", "-z")
		if err != nil {
			return nil, fmt.Errorf("list untracked files: %w", err)
		}
		paths = append(paths, splitNUL(out)...)
	}
	return paths, nil
}

// CurrentBranch returns the short name of the checked out branch.
func (c *ShellClient) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		if exitCode(err) == 1 {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// TagExists reports whether refs/tags/<tag> exists locally.
func (c *ShellClient) TagExists(ctx context.Context, dir, tag string) (bool, error) {
	_, err := c.run(ctx, dir, "rev-parse", "-q", "--verify", "refs/tags/"+tag)
	if err == nil {
		return true, nil
	}
	if exitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

// AddAll stages all changes in the work tree.
func (c *ShellClient) AddAll(ctx context.Context, dir string) error {
	_, err := c.run(ctx, dir, "add", "-A")
	return err
}

// HasStagedChanges reports whether anything is staged for commit.
func (c *ShellClient) HasStagedChanges(ctx context.Context, dir string) (bool, error) {
	_, err := c.run(ctx, dir, "diff", "--cached", "--quiet")
	if err == nil {
		return false, nil
	}
	if exitCode(err) == 1 {
		return true, nil
	}
	return false, err
}

// Commit commits the index. The message is passed verbatim; git does not
// strip whitespace or comment lines from it.
func (c *ShellClient) Commit(ctx context.Context, dir, message string) error {
	_, err := c.run(ctx, dir, "commit", "-q", "--cleanup=verbatim", "-m", message)
	return err
}

// Tag creates a lightweight tag, or an annotated one when message is set.
func (c *ShellClient) Tag(ctx context.Context, dir, tag, message string) error {
	args := []string{"tag"}
	if message != "" {
		args = append(args, "-a", "-m", message)
	}
	args = append(args, tag)
	_, err := c.run(ctx, dir, args...)
	return err
}

// Push pushes refspec to remote.
func (c *ShellClient) Push(ctx context.Context, dir, remote, refspec string) error {
	_, err := c.run(ctx, dir, "push", "-q", remote, refspec)
	return err
}

// RemoteTagExists lists the remote's tag refs and looks for tag.
func (c *ShellClient) RemoteTagExists(ctx context.Context, dir, remote, tag string) (bool, error) {
	ref := "refs/tags/" + tag
	out, err := c.run(ctx, dir, "ls-remote", "--tags", remote, ref)
	if err != nil {
		return false, err
	}
	for line := range strings.SplitSeq(string(out), "\n") {
		_, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		if name == ref || name == ref+"^{}" {
			return true, nil
		}
	}
	return false, nil
}

// HeadCommit returns the hash of HEAD.
func (c *ShellClient) HeadCommit(ctx context.Context, dir string) (string, error) {
	out, err := c.run(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func splitNUL(b []byte) []string {
	var out []string
	for p := range strings.SplitSeq(string(b), "\x00") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
