package mirror

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExclude lists paths that are never published. Matching entries
// already in the destination are deleted.
var DefaultExclude = []string{
	"plans",
}

// DefaultProtect lists version-control metadata that is neither copied from
// the source nor deleted from the destination.
var DefaultProtect = []string{
	".git",
	".hg",
	".svn",
	".jj",
}

// Filter decides which relative paths take part in a mirror.
//
// A pattern without a slash matches any single path segment, so "plans"
// covers every directory named plans at any depth together with its
// contents. A pattern with a slash is matched with doublestar against the
// whole relative path and each of its parent directories.
type Filter struct {
	Exclude []string
	Protect []string
}

// Excluded reports whether rel (slash separated, relative to the root) is
// never published.
func (f Filter) Excluded(rel string) bool {
	return matchAny(f.Exclude, rel)
}

// Protected reports whether rel is left alone in the destination.
func (f Filter) Protected(rel string) bool {
	return matchAny(f.Protect, rel)
}

func matchAny(patterns []string, rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, pattern := range patterns {
		pattern = strings.Trim(pattern, "/")
		if pattern == "" {
			continue
		}
		if !strings.Contains(pattern, "/") {
			for _, seg := range segments {
				if ok, err := doublestar.Match(pattern, seg); err == nil && ok {
					return true
				}
			}
			continue
		}
		for i := range segments {
			prefix := strings.Join(segments[:i+1], "/")
			if ok, err := doublestar.Match(pattern, prefix); err == nil && ok {
				return true
			}
		}
	}
	return false
}
