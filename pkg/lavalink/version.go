package lavalink

import (
	"fmt"
	"strconv"
	"strings"
)

// newestKnownMajor is assumed for version strings carrying a non-numeric
// suffix such as "4.0.0-SNAPSHOT", where the node is running ahead of any
// tagged release.
const newestKnownMajor = 4

// minimumVersion is the oldest node release this client speaks to. Older
// nodes predate the session-scoped REST player API.
var minimumVersion = Version{Major: 3, Minor: 7, Fix: 0}

// Version is a node's negotiated protocol version.
type Version struct {
	Major int
	Minor int
	Fix   int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Fix)
}

// Less reports whether v is older than other.
func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Fix < other.Fix
}

// AtLeast reports whether v is other or newer.
func (v Version) AtLeast(other Version) bool {
	return !v.Less(other)
}

// ParseVersion parses a node's /version response. A trailing non-numeric
// suffix marks a snapshot build, which is treated as the newest known major.
func ParseVersion(raw string) (Version, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	if i := strings.IndexAny(s, "-+"); i >= 0 {
		return Version{Major: newestKnownMajor}, nil
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("malformed version string %q", raw)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("malformed version string %q: %w", raw, err)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Fix: nums[2]}, nil
}
