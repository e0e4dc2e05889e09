// Package mirror makes a destination directory an exact copy of a source
// directory, minus excluded paths, without touching protected ones.
package mirror

import (
	"context"
	"fmt"
	"io"

	"github.com/klauern/plugin-publish/internal/atomicfile"
)

// Backend names a mirror implementation.
type Backend string

const (
	// BackendNative mirrors in-process.
	BackendNative Backend = "native"
	// BackendRsync shells out to rsync.
	BackendRsync Backend = "rsync"
)

// IsValid reports whether b names a known backend.
func (b Backend) IsValid() bool {
	return b == BackendNative || b == BackendRsync
}

// Syncer mirrors src into dst.
type Syncer interface {
	// Preview reports what Sync would change without changing anything.
	Preview(ctx context.Context, src, dst string) (*Stats, error)
	// Sync makes dst match src, deleting extra and excluded files.
	Sync(ctx context.Context, src, dst string) (*Stats, error)
}

// Op is the kind of change applied to one path.
type Op string

const (
	OpAdd    Op = "add"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is one planned operation on a destination path.
type Change struct {
	Op   Op
	Path string
	Dir  bool
}

// Stats summarises a mirror run.
type Stats struct {
	Added     int
	Updated   int
	Deleted   int
	Unchanged int
	Changes   []Change
}

// Total returns the number of changed paths.
func (s *Stats) Total() int {
	return s.Added + s.Updated + s.Deleted
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d added, %d updated, %d deleted, %d unchanged",
		s.Added, s.Updated, s.Deleted, s.Unchanged)
}

// Options configures New.
type Options struct {
	Backend Backend
	Filter  Filter
	// Tracker owns temporary files created by the native backend.
	Tracker *atomicfile.Tracker
	// Progress receives a progress bar; nil disables it.
	Progress io.Writer
}

// New returns the Syncer for opts.Backend. An empty backend means native.
func New(opts Options) (Syncer, error) {
	tracker := opts.Tracker
	if tracker == nil {
		tracker = atomicfile.NewTracker()
	}
	switch opts.Backend {
	case BackendNative, "":
		return &Native{Filter: opts.Filter, Tracker: tracker, Progress: opts.Progress}, nil
	case BackendRsync:
		return &Rsync{Filter: opts.Filter}, nil
	default:
		return nil, fmt.Errorf("unknown sync backend %q", opts.Backend)
	}
}

// RequiredTools lists the executables backend needs on PATH.
func RequiredTools(backend Backend) []string {
	if backend == BackendRsync {
		return []string{"rsync"}
	}
	return nil
}
