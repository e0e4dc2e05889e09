package mirror

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klauern/plugin-publish/internal/atomicfile"
	"github.com/klauern/plugin-publish/internal/ui"
	"github.com/klauern/plugin-publish/internal/util"
)

func newNative() *Native {
	return &Native{
		Filter:  Filter{Exclude: DefaultExclude, Protect: DefaultProtect},
		Tracker: atomicfile.NewTracker(),
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestNativeSyncIntoEmptyDestination(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst", "my-plugin")

	util.WriteFile(t, filepath.Join(src, ".claude-plugin", "plugin.json"), `{"version":"0.4.0"}`)
	util.WriteFile(t, filepath.Join(src, "skills", "a", "SKILL.md"), "skill")
	util.WriteFile(t, filepath.Join(src, "plans", "todo.md"), "secret")
	util.WriteFile(t, filepath.Join(src, "skills", "plans", "x.md"), "secret")
	util.WriteFile(t, filepath.Join(src, ".git", "HEAD"), "ref: refs/heads/main")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o750))

	n := newNative()
	stats, err := n.Sync(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, `{"version":"0.4.0"}`, readFile(t, filepath.Join(dst, ".claude-plugin", "plugin.json")))
	assert.Equal(t, "skill", readFile(t, filepath.Join(dst, "skills", "a", "SKILL.md")))
	assert.NoDirExists(t, filepath.Join(dst, "plans"))
	assert.NoDirExists(t, filepath.Join(dst, "skills", "plans"))
	assert.NoDirExists(t, filepath.Join(dst, ".git"))
	assert.DirExists(t, filepath.Join(dst, "empty"))

	assert.Equal(t, 0, stats.Deleted)
	assert.Equal(t, 0, stats.Updated)
	// Files: plugin.json and SKILL.md; dirs: .claude-plugin, skills, skills/a, empty.
	assert.Equal(t, 6, stats.Added)
	assert.Empty(t, n.Tracker.Pending())
}

func TestNativeSyncMirrorsWithDeletion(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")

	util.WriteFile(t, filepath.Join(src, "keep.md"), "same")
	util.WriteFile(t, filepath.Join(src, "change.md"), "new content")
	util.WriteFile(t, filepath.Join(src, "added", "file.md"), "added")

	util.WriteFile(t, filepath.Join(dst, "keep.md"), "same")
	util.WriteFile(t, filepath.Join(dst, "change.md"), "old content")
	util.WriteFile(t, filepath.Join(dst, "stale.md"), "stale")
	util.WriteFile(t, filepath.Join(dst, "gone", "deep", "file.md"), "gone")
	util.WriteFile(t, filepath.Join(dst, "plans", "old.md"), "excluded in destination")
	util.WriteFile(t, filepath.Join(dst, ".git", "config"), "[core]")
	util.WriteFile(t, filepath.Join(dst, "nested", ".jj", "repo"), "jj")

	stats, err := newNative().Sync(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, "same", readFile(t, filepath.Join(dst, "keep.md")))
	assert.Equal(t, "new content", readFile(t, filepath.Join(dst, "change.md")))
	assert.Equal(t, "added", readFile(t, filepath.Join(dst, "added", "file.md")))
	assert.NoFileExists(t, filepath.Join(dst, "stale.md"))
	assert.NoDirExists(t, filepath.Join(dst, "gone"))
	assert.NoDirExists(t, filepath.Join(dst, "plans"))

	// Version-control metadata is never deleted, even when its parent is.
	assert.Equal(t, "[core]", readFile(t, filepath.Join(dst, ".git", "config")))
	assert.Equal(t, "jj", readFile(t, filepath.Join(dst, "nested", ".jj", "repo")))

	assert.Equal(t, 1, stats.Unchanged)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 2, stats.Added)
	assert.Contains(t, stats.Changes, Change{Op: OpDelete, Path: "stale.md"})
	assert.Contains(t, stats.Changes, Change{Op: OpDelete, Path: "gone", Dir: true})
	assert.Contains(t, stats.Changes, Change{Op: OpDelete, Path: "plans/old.md"})
}

func TestNativeSyncIsIdempotent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	util.WriteFile(t, filepath.Join(src, "a", "b.md"), "b")
	util.WriteFile(t, filepath.Join(src, "c.md"), "c")

	n := newNative()
	_, err := n.Sync(context.Background(), src, dst)
	require.NoError(t, err)

	stats, err := n.Sync(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Total())
	assert.Equal(t, 2, stats.Unchanged)
}

func TestNativeSyncPermissionChangeIsUpdate(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	util.WriteFile(t, filepath.Join(src, "run.sh"), "#!/bin/sh\n")
	util.WriteFile(t, filepath.Join(dst, "run.sh"), "#!/bin/sh\n")
	require.NoError(t, os.Chmod(filepath.Join(src, "run.sh"), 0o755))

	stats, err := newNative().Sync(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)

	info, err := os.Stat(filepath.Join(dst, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestNativeSyncTypeChange(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	util.WriteFile(t, filepath.Join(src, "thing"), "now a file")
	util.WriteFile(t, filepath.Join(src, "other", "inner.md"), "now a dir")
	util.WriteFile(t, filepath.Join(dst, "thing", "child.md"), "was a dir")
	util.WriteFile(t, filepath.Join(dst, "other"), "was a file")

	_, err := newNative().Sync(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, "now a file", readFile(t, filepath.Join(dst, "thing")))
	assert.Equal(t, "now a dir", readFile(t, filepath.Join(dst, "other", "inner.md")))
}

func TestNativeSyncSymlinks(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	util.WriteFile(t, filepath.Join(src, "target.md"), "t")
	require.NoError(t, os.Symlink("target.md", filepath.Join(src, "link.md")))

	_, err := newNative().Sync(context.Background(), src, dst)
	require.NoError(t, err)

	target, err := os.Readlink(filepath.Join(dst, "link.md"))
	require.NoError(t, err)
	assert.Equal(t, "target.md", target)
}

func TestNativePreviewChangesNothing(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	util.WriteFile(t, filepath.Join(src, "new.md"), "new")
	util.WriteFile(t, filepath.Join(dst, "old.md"), "old")

	stats, err := newNative().Preview(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Added)
	assert.Equal(t, 1, stats.Deleted)
	assert.FileExists(t, filepath.Join(dst, "old.md"))
	assert.NoFileExists(t, filepath.Join(dst, "new.md"))
}

func TestNativeSyncErrors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	util.WriteFile(t, file, "x")

	_, err := newNative().Sync(context.Background(), filepath.Join(root, "missing"), filepath.Join(root, "dst"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = newNative().Sync(context.Background(), file, filepath.Join(root, "dst"))
	assert.ErrorContains(t, err, "not a directory")
}

func TestNativeSyncCanceled(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	util.WriteFile(t, filepath.Join(src, "a.md"), "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newNative().Sync(ctx, src, filepath.Join(root, "dst"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeSyncProgressOutput(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	util.WriteFile(t, filepath.Join(src, "a.md"), "a")
	ui.EnableColors()

	var buf bytes.Buffer
	n := newNative()
	n.Progress = &buf
	_, err := n.Sync(context.Background(), src, filepath.Join(root, "dst"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "dst", "a.md"))
	assert.Contains(t, buf.String(), "Copying files to dst")
}

func TestNewBackends(t *testing.T) {
	s, err := New(Options{})
	require.NoError(t, err)
	assert.IsType(t, &Native{}, s)

	s, err = New(Options{Backend: BackendRsync})
	require.NoError(t, err)
	assert.IsType(t, &Rsync{}, s)

	_, err = New(Options{Backend: "scp"})
	assert.ErrorContains(t, err, "unknown sync backend")

	assert.Nil(t, RequiredTools(BackendNative))
	assert.Equal(t, []string{"rsync"}, RequiredTools(BackendRsync))
	assert.True(t, BackendNative.IsValid())
	assert.False(t, Backend("").IsValid())
}

func TestStatsString(t *testing.T) {
	s := &Stats{Added: 1, Updated: 2, Deleted: 3, Unchanged: 4}
	assert.Equal(t, "1 added, 2 updated, 3 deleted, 4 unchanged", s.String())
	assert.Equal(t, 6, s.Total())
}
