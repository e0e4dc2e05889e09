// Package atomicfile replaces files by writing a temporary sibling and
// renaming it over the target, so readers only ever see the old or the new
// content.
package atomicfile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauern/plugin-publish/internal/logging"
)

// Tracker owns the temporary files created during one operation. Call
// Cleanup (usually deferred right after creating the Tracker) to remove any
// temporary file that was never promoted.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]struct{})}
}

// WriteFile atomically replaces path with data. When path already exists its
// permissions are kept, otherwise perm is used.
func (t *Tracker) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return t.Write(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Write atomically replaces path with whatever fill writes. If fill fails the
// target is left untouched.
func (t *Tracker) Write(path string, perm fs.FileMode, fill func(io.Writer) error) error {
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return t.write(path, perm, fill)
}

// CopyFile atomically replaces dst with the content and permissions of src.
func (t *Tracker) CopyFile(dst, src string) error {
	// #nosec G304 - src comes from walking the source tree
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = in.Close()
	}()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	return t.write(dst, info.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func (t *Tracker) write(path string, perm fs.FileMode, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	t.track(tmpPath)

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	t.untrack(tmpPath)

	logging.Debug("replaced file", logging.Path(path))
	return nil
}

// Pending returns the temporary files not yet promoted or removed.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.pending))
	for p := range t.pending {
		out = append(out, p)
	}
	return out
}

// Cleanup removes every pending temporary file. It is safe to call more than once.
func (t *Tracker) Cleanup() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	for p := range t.pending {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		logging.Debug("removed temp file", logging.Path(p))
		delete(t.pending, p)
	}
	return errors.Join(errs...)
}

func (t *Tracker) track(p string) {
	t.mu.Lock()
	t.pending[p] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) untrack(p string) {
	t.mu.Lock()
	delete(t.pending, p)
	t.mu.Unlock()
}
