package host

import (
	"strconv"
	"strings"
)

// Version is the semantic version of a registered package.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses a version string like "1.2.0" or "1.2".
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}

	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, false
	}

	var v Version
	for i, p := range parts {
		if p == "" {
			return Version{}, false
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		switch i {
		case 0:
			v.Major = uint32(n)
		case 1:
			v.Minor = uint32(n)
		case 2:
			v.Patch = uint32(n)
		}
	}
	return v, true
}

// Compatible reports whether v can stand in for want: same major, and not
// older than want.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	return !v.Less(want)
}

// Less orders versions by major, minor, then patch.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." +
		strconv.FormatUint(uint64(v.Minor), 10) + "." +
		strconv.FormatUint(uint64(v.Patch), 10)
}

// splitVersion splits "name@1.2" into its name and version. A trailing
// "@..." that is not a version stays part of the name, so scoped names
// like "@acme/log" are left alone.
func splitVersion(s string) (string, *Version) {
	idx := strings.LastIndex(s, "@")
	if idx <= 0 {
		return s, nil
	}
	if v, ok := ParseVersion(s[idx+1:]); ok {
		return s[:idx], &v
	}
	return s, nil
}
