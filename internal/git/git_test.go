package git

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/plugin-publish/internal/util"
)

// newRepo creates a repository with one committed file.
func newRepo(t *testing.T) string {
	t.Helper()
	util.RequireGit(t)
	dir := filepath.Join(t.TempDir(), "repo")
	util.InitRepo(t, dir)
	util.WriteFile(t, filepath.Join(dir, "README.md"), "hello\n")
	util.CommitAll(t, dir, "initial")
	return dir
}

func TestIsWorkTree(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)

	assert.True(t, c.IsWorkTree(ctx, repo))
	assert.False(t, c.IsWorkTree(ctx, t.TempDir()))
	assert.False(t, c.IsWorkTree(ctx, filepath.Join(repo, "missing")))
}

func TestShowPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)
	util.WriteFile(t, filepath.Join(repo, "plugins", "a", "f.txt"), "x")

	prefix, err := c.ShowPrefix(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "", prefix)

	prefix, err = c.ShowPrefix(ctx, filepath.Join(repo, "plugins"))
	require.NoError(t, err)
	assert.Equal(t, "plugins", prefix)
}

func TestChangedFiles(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)
	util.WriteFile(t, filepath.Join(repo, "alpha", "main.txt"), "v1")
	util.CommitAll(t, repo, "add alpha")

	files, err := c.ChangedFiles(ctx, repo, false)
	require.NoError(t, err)
	assert.Empty(t, files)

	util.WriteFile(t, filepath.Join(repo, "alpha", "main.txt"), "v2")
	util.WriteFile(t, filepath.Join(repo, "beta", "new file.txt"), "untracked")

	files, err = c.ChangedFiles(ctx, repo, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha/main.txt"}, files)

	files, err = c.ChangedFiles(ctx, repo, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha/main.txt", "beta/new file.txt"}, files)

	// Staged changes count too.
	util.Git(t, repo, "add", "alpha/main.txt")
	files, err = c.ChangedFiles(ctx, repo, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha/main.txt"}, files)
}

func TestChangedFilesFromSubdirectoryUsesTopLevelPaths(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)
	util.WriteFile(t, filepath.Join(repo, "plugins", "alpha", "a.txt"), "v1")
	util.CommitAll(t, repo, "add")
	util.WriteFile(t, filepath.Join(repo, "plugins", "alpha", "a.txt"), "v2")
	util.WriteFile(t, filepath.Join(repo, "plugins", "beta", "b.txt"), "new")

	files, err := c.ChangedFiles(ctx, filepath.Join(repo, "plugins"), true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"plugins/alpha/a.txt", "plugins/beta/b.txt"}, files)
}

func TestCurrentBranch(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)

	branch, err := c.CurrentBranch(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)

	util.Git(t, repo, "checkout", "-q", "--detach")
	branch, err = c.CurrentBranch(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "", branch)
}

func TestCommitAndTag(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)

	staged, err := c.HasStagedChanges(ctx, repo)
	require.NoError(t, err)
	assert.False(t, staged)

	util.WriteFile(t, filepath.Join(repo, "a.txt"), "a")
	require.NoError(t, c.AddAll(ctx, repo))
	staged, err = c.HasStagedChanges(ctx, repo)
	require.NoError(t, err)
	assert.True(t, staged)

	msg := "feat: thing\n\n# not a comment\n"
	require.NoError(t, c.Commit(ctx, repo, msg))
	assert.Equal(t, msg, util.Git(t, repo, "log", "-1", "--format=%B")+"\n")

	head, err := c.HeadCommit(ctx, repo)
	require.NoError(t, err)
	assert.Len(t, head, 40)

	exists, err := c.TagExists(ctx, repo, "v0.1.0")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Tag(ctx, repo, "v0.1.0", ""))
	require.NoError(t, c.Tag(ctx, repo, "v0.1.1", "annotated release"))

	exists, err = c.TagExists(ctx, repo, "v0.1.0")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "tag", util.Git(t, repo, "cat-file", "-t", "v0.1.1"))
	assert.Equal(t, "commit", util.Git(t, repo, "cat-file", "-t", "v0.1.0"))

	err = c.Tag(ctx, repo, "v0.1.0", "")
	require.Error(t, err)
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.NotZero(t, ce.ExitCode)
	assert.Contains(t, ce.Error(), "already exists")
}

func TestPushAndRemoteTagExists(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)
	origin := filepath.Join(t.TempDir(), "origin.git")
	util.InitBareRepo(t, origin)
	util.Git(t, repo, "remote", "add", "origin", origin)

	exists, err := c.RemoteTagExists(ctx, repo, "origin", "v1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Tag(ctx, repo, "v1.0.0", "release"))
	require.NoError(t, c.Push(ctx, repo, "origin", "main"))
	require.NoError(t, c.Push(ctx, repo, "origin", "refs/tags/v1.0.0"))

	exists, err = c.RemoteTagExists(ctx, repo, "origin", "v1.0.0")
	require.NoError(t, err)
	assert.True(t, exists)

	// A prefix of an existing tag is not a match.
	exists, err = c.RemoteTagExists(ctx, repo, "origin", "v1.0")
	require.NoError(t, err)
	assert.False(t, exists)

	head, err := c.HeadCommit(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, head, util.Git(t, origin, "rev-parse", "main"))
}

func TestPushToMissingRemoteFails(t *testing.T) {
	ctx := context.Background()
	c := NewShellClient()
	repo := newRepo(t)

	err := c.Push(ctx, repo, "nowhere", "main")
	assert.Error(t, err)

	_, err = c.RemoteTagExists(ctx, repo, "nowhere", "v1.0.0")
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	repo := newRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewShellClient().HeadCommit(ctx, repo)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitNUL(t *testing.T) {
	tests := map[string]struct {
		in   string
		want []string
	}{
		"empty":       {in: "", want: nil},
		"single":      {in: "a\x00", want: []string{"a"}},
		"spaces kept": {in: "a b\x00c\x00", want: []string{"a b", "c"}},
		"no trailing": {in: "a\x00b", want: []string{"a", "b"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitNUL([]byte(tt.in)))
		})
	}
}
