package serialized

import (
	"fmt"
	"regexp"
	"strconv"
)

// Version is a generator version such as 2020.3.15f1.
type Version struct {
	Major, Minor, Patch int
	Stage               string // a, b, f, p, x
	Build               int
}

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)([a-zA-Z]*)(\d*)`)

// ParseVersion parses a generator version string. Trailing data after the
// build number (some files append a revision) is ignored.
func ParseVersion(s string) (Version, error) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("parse version %q: unrecognized format", s)
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	v.Stage = m[4]
	if m[5] != "" {
		v.Build, _ = strconv.Atoi(m[5])
	}
	return v, nil
}

// AtLeast reports whether v is major.minor or newer.
func (v Version) AtLeast(major, minor int) bool {
	if v.Major != major {
		return v.Major > major
	}
	return v.Minor >= minor
}

// IsZero reports whether the version is unknown, which stripped builds
// record as 0.0.0.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Patch == 0
}

func (v Version) String() string {
	if v.Stage == "" {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d%s%d", v.Major, v.Minor, v.Patch, v.Stage, v.Build)
}
