// Package detect works out which plugin a working-tree diff belongs to.
//
// Detection is a pure function of the changed paths: it does not depend on
// their order, only on the set of top-level directories touched.
package detect

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnore lists top-level entries that are never a plugin.
var DefaultIgnore = []string{
	".*",
	"LICENSE",
	"LICENSE.*",
	"README.md",
	"publish.sh",
	"test",
	"tests",
	"docs",
	"plans",
}

// DefaultExclude lists paths whose changes never count toward a plugin.
var DefaultExclude = []string{
	"*/plans/**",
}

// ErrNoChanges is returned when no plugin directory changed.
var ErrNoChanges = errors.New("no plugin changes detected")

// MultipleError is returned when more than one plugin changed.
type MultipleError struct {
	// Plugins is sorted.
	Plugins []string
}

func (e *MultipleError) Error() string {
	return fmt.Sprintf("multiple plugins changed: %s", strings.Join(e.Plugins, ", "))
}

// Detector maps changed paths to plugin names.
type Detector struct {
	// Ignore holds doublestar patterns matched against the first path segment.
	Ignore []string
	// Exclude holds doublestar patterns matched against the whole
	// repo-relative path.
	Exclude []string
}

// New returns a detector with the default ignore and exclude sets.
func New() *Detector {
	return &Detector{
		Ignore:  slices.Clone(DefaultIgnore),
		Exclude: slices.Clone(DefaultExclude),
	}
}

// Plugins returns the sorted, de-duplicated plugin names touched by paths.
//
// Paths are git paths (slash separated, relative to the git top level).
// prefix is the location of the plugin repository inside the git work tree
// ("" when they coincide); paths outside it are dropped.
func (d *Detector) Plugins(paths []string, prefix string) []string {
	prefix = strings.Trim(prefix, "/")
	set := make(map[string]struct{})

	for _, p := range paths {
		rel, ok := relative(p, prefix)
		if !ok || rel == "" {
			continue
		}
		if d.excluded(rel) {
			continue
		}
		seg, _, _ := strings.Cut(rel, "/")
		if seg == "" || d.ignored(seg) {
			continue
		}
		set[seg] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Single returns the one plugin touched by paths, ErrNoChanges, or a
// *MultipleError listing every plugin touched.
func (d *Detector) Single(paths []string, prefix string) (string, error) {
	plugins := d.Plugins(paths, prefix)
	switch len(plugins) {
	case 0:
		return "", ErrNoChanges
	case 1:
		return plugins[0], nil
	default:
		return "", &MultipleError{Plugins: plugins}
	}
}

func (d *Detector) ignored(segment string) bool {
	for _, pattern := range d.Ignore {
		if ok, err := doublestar.Match(pattern, segment); err == nil && ok {
			return true
		}
	}
	return false
}

func (d *Detector) excluded(rel string) bool {
	for _, pattern := range d.Exclude {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// relative strips prefix from p. Git quotes unusual paths; those are
// unquoted first.
func relative(p, prefix string) (string, bool) {
	p = strings.TrimSpace(p)
	p = strings.Trim(p, `"`)
	p = path.Clean(strings.TrimPrefix(p, "./"))
	if p == "." {
		return "", true
	}
	if prefix == "" {
		return p, true
	}
	if rest, ok := strings.CutPrefix(p, prefix+"/"); ok {
		return rest, true
	}
	return "", false
}
