// Package semver parses plugin versions and computes the next release version.
//
// Versions are strict MAJOR.MINOR.PATCH triples. Below 1.0.0 the API is
// considered unstable, so a major bump request only advances MINOR.
package semver

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Kind selects which version component a bump advances.
type Kind string

const (
	Major Kind = "major"
	Minor Kind = "minor"
	Patch Kind = "patch"
)

// Kinds lists the accepted bump kinds in display order.
var Kinds = []Kind{Major, Minor, Patch}

// ErrInvalidKind is returned by ParseKind for anything but major, minor or patch.
var ErrInvalidKind = errors.New("bump-type must be major, minor, or patch")

// ErrInvalidVersion is returned when a version is not a strict MAJOR.MINOR.PATCH triple.
var ErrInvalidVersion = errors.New("invalid version")

// ParseKind validates a bump kind.
func ParseKind(s string) (Kind, error) {
	if k := Kind(s); slices.Contains(Kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("%w (got %q)", ErrInvalidKind, s)
}

// Version is a parsed MAJOR.MINOR.PATCH version.
type Version struct {
	v *mmsemver.Version
}

// Parse parses a strict MAJOR.MINOR.PATCH version. A leading "v",
// pre-release or build metadata, and missing components are rejected.
func Parse(s string) (Version, error) {
	if strings.TrimSpace(s) != s || s == "" {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	v, err := mmsemver.StrictNewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	if v.Prerelease() != "" || v.Metadata() != "" {
		return Version{}, fmt.Errorf("%w: %q: pre-release and build metadata are not supported", ErrInvalidVersion, s)
	}
	return Version{v: v}, nil
}

func (v Version) Major() uint64 { return v.get().Major() }
func (v Version) Minor() uint64 { return v.get().Minor() }
func (v Version) Patch() uint64 { return v.get().Patch() }

func (v Version) String() string {
	return v.get().String()
}

func (v Version) get() *mmsemver.Version {
	if v.v == nil {
		return mmsemver.New(0, 0, 0, "", "")
	}
	return v.v
}

// Bump returns the version that follows v for the given kind.
//
// For MAJOR == 0 both major and minor bumps advance MINOR and reset PATCH;
// from 1.0.0 on the usual semver rules apply. A component already at its
// maximum cannot be advanced and yields ErrInvalidVersion.
func Bump(v Version, kind Kind) (Version, error) {
	cur := v.get()
	var next mmsemver.Version
	switch {
	case kind == Patch:
		if cur.Patch() == math.MaxUint64 {
			return Version{}, overflow(v, "patch")
		}
		next = cur.IncPatch()
	case cur.Major() == 0, kind == Minor:
		if cur.Minor() == math.MaxUint64 {
			return Version{}, overflow(v, "minor")
		}
		next = cur.IncMinor()
	default:
		if cur.Major() == math.MaxUint64 {
			return Version{}, overflow(v, "major")
		}
		next = cur.IncMajor()
	}
	return Version{v: &next}, nil
}

func overflow(v Version, component string) error {
	return fmt.Errorf("%w: %q: %s component cannot be incremented", ErrInvalidVersion, v.String(), component)
}

// BumpString parses version and bumps it by kind.
func BumpString(version, kind string) (string, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return "", err
	}
	v, err := Parse(version)
	if err != nil {
		return "", err
	}
	next, err := Bump(v, k)
	if err != nil {
		return "", err
	}
	return next.String(), nil
}
