package mirror

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauern/plugin-publish/internal/atomicfile"
	"github.com/klauern/plugin-publish/internal/logging"
	"github.com/klauern/plugin-publish/internal/progress"
)

// Native mirrors directories in-process. Files are compared by size, mode
// and content hash; changed files are replaced atomically.
type Native struct {
	Filter   Filter
	Tracker  *atomicfile.Tracker
	Progress io.Writer
}

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindSymlink
)

type entry struct {
	kind   entryKind
	perm   fs.FileMode
	size   int64
	target string
}

type syncPlan struct {
	changes   []Change
	unchanged int
}

// Preview plans the mirror without applying it.
func (n *Native) Preview(ctx context.Context, src, dst string) (*Stats, error) {
	p, err := n.plan(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	return p.stats(), nil
}

// Sync makes dst an exact copy of src.
func (n *Native) Sync(ctx context.Context, src, dst string) (*Stats, error) {
	p, err := n.plan(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if err := n.apply(ctx, src, dst, p); err != nil {
		return nil, err
	}
	return p.stats(), nil
}

func (p *syncPlan) stats() *Stats {
	s := &Stats{Unchanged: p.unchanged, Changes: slices.Clone(p.changes)}
	for _, c := range p.changes {
		switch c.Op {
		case OpAdd:
			s.Added++
		case OpUpdate:
			s.Updated++
		case OpDelete:
			s.Deleted++
		}
	}
	return s
}

func (n *Native) plan(ctx context.Context, src, dst string) (*syncPlan, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %s is not a directory", src)
	}

	srcEntries, err := scan(ctx, src, func(rel string) bool {
		return n.Filter.Protected(rel) || n.Filter.Excluded(rel)
	})
	if err != nil {
		return nil, err
	}
	dstEntries, err := scan(ctx, dst, n.Filter.Protected)
	if err != nil {
		return nil, err
	}

	p := &syncPlan{}
	for _, rel := range sortedKeys(dstEntries) {
		d := dstEntries[rel]
		s, ok := srcEntries[rel]
		if !ok || s.kind != d.kind {
			p.changes = append(p.changes, Change{Op: OpDelete, Path: rel, Dir: d.kind == kindDir})
		}
	}
	for _, rel := range sortedKeys(srcEntries) {
		s := srcEntries[rel]
		d, ok := dstEntries[rel]
		switch {
		case !ok || d.kind != s.kind:
			p.changes = append(p.changes, Change{Op: OpAdd, Path: rel, Dir: s.kind == kindDir})
		case s.kind == kindDir:
			// Directories only need to exist.
		default:
			same, err := sameContent(filepath.Join(src, rel), filepath.Join(dst, rel), s, d)
			if err != nil {
				return nil, err
			}
			if same {
				p.unchanged++
			} else {
				p.changes = append(p.changes, Change{Op: OpUpdate, Path: rel})
			}
		}
	}
	return p, nil
}

func (n *Native) apply(ctx context.Context, src, dst string, p *syncPlan) error {
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	bar := progress.New(progress.Options{
		Max:         int64(len(p.changes)),
		Description: "Syncing " + filepath.Base(dst),
		Writer:      n.Progress,
		Disabled:    n.Progress == nil,
	})

	var fileDeletes, dirDeletes, dirAdds, fileWrites []Change
	for _, c := range p.changes {
		switch {
		case c.Op == OpDelete && c.Dir:
			dirDeletes = append(dirDeletes, c)
		case c.Op == OpDelete:
			fileDeletes = append(fileDeletes, c)
		case c.Dir:
			dirAdds = append(dirAdds, c)
		default:
			fileWrites = append(fileWrites, c)
		}
	}
	// Children before parents when removing, parents first when creating.
	slices.SortFunc(dirDeletes, func(a, b Change) int { return depth(b.Path) - depth(a.Path) })
	slices.SortFunc(dirAdds, func(a, b Change) int { return depth(a.Path) - depth(b.Path) })

	step := func(c Change, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(); err != nil {
			return fmt.Errorf("%s %s: %w", c.Op, c.Path, err)
		}
		logging.WithContext(ctx).Debug("mirrored path", logging.Operation(string(c.Op)), logging.Path(c.Path))
		return bar.Add(1)
	}

	name := filepath.Base(dst)
	phases := []struct {
		desc    string
		changes []Change
		fn      func(Change) error
	}{
		{"Removing files in " + name, fileDeletes, func(c Change) error { return removeFile(filepath.Join(dst, c.Path)) }},
		{"Pruning directories in " + name, dirDeletes, func(c Change) error { return removeDir(filepath.Join(dst, c.Path)) }},
		{"Creating directories in " + name, dirAdds, func(c Change) error {
			return mkdirLike(filepath.Join(dst, c.Path), filepath.Join(src, c.Path))
		}},
		{"Copying files to " + name, fileWrites, func(c Change) error {
			return n.copyEntry(filepath.Join(dst, c.Path), filepath.Join(src, c.Path))
		}},
	}
	for _, ph := range phases {
		if len(ph.changes) == 0 {
			continue
		}
		bar.Describe(ph.desc)
		for _, c := range ph.changes {
			if err := step(c, func() error { return ph.fn(c) }); err != nil {
				return err
			}
		}
	}
	return bar.Finish()
}

func (n *Native) copyEntry(dst, src string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		if err := removeFile(dst); err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}
	return n.Tracker.CopyFile(dst, src)
}

// scan walks root and returns every entry keyed by slash-separated relative
// path. skip prunes entries (and whole directories). A missing root is empty.
func scan(ctx context.Context, root string, skip func(rel string) bool) (map[string]entry, error) {
	out := make(map[string]entry)
	if _, err := os.Lstat(root); errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if skip(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		e := entry{perm: info.Mode().Perm(), size: info.Size()}
		switch {
		case d.IsDir():
			e.kind = kindDir
		case info.Mode()&fs.ModeSymlink != 0:
			e.kind = kindSymlink
			if e.target, err = os.Readlink(path); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			e.kind = kindFile
		default:
			logging.Warn("skipping special file", logging.Path(path))
			return nil
		}
		out[rel] = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	return out, nil
}

func sameContent(srcPath, dstPath string, s, d entry) (bool, error) {
	if s.kind == kindSymlink {
		return s.target == d.target, nil
	}
	if s.size != d.size || s.perm != d.perm {
		return false, nil
	}
	a, err := fileHash(srcPath)
	if err != nil {
		return false, err
	}
	b, err := fileHash(dstPath)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}

func fileHash(path string) ([]byte, error) {
	// #nosec G304 - path comes from walking a mirrored tree
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// removeDir removes an empty directory. A directory still holding protected
// entries is kept.
func removeDir(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if left, readErr := os.ReadDir(path); readErr == nil && len(left) > 0 {
		logging.Warn("keeping directory with protected content", logging.Path(path))
		return nil
	}
	return err
}

func mkdirLike(dst, src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}

func depth(rel string) int {
	return strings.Count(rel, "/")
}

func sortedKeys(m map[string]entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
