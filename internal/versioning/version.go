package versioning

import (
	"fmt"
	"regexp"
	"strconv"

	"waprofiles/internal/constants"
)

// APIVersion is a semantic version of the HTTP API.
type APIVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

func (v APIVersion) String() string {
	version := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		version += "-" + v.Prerelease
	}
	return version
}

// Compare returns -1, 0 or 1. A release sorts after its prereleases.
func (v APIVersion) Compare(other APIVersion) int {
	for _, d := range [3]int{v.Major - other.Major, v.Minor - other.Minor, v.Patch - other.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

var versionPattern = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([a-zA-Z0-9.\-]+))?$`)

// ParseVersion accepts "1", "1.2", "1.2.3", an optional "v" prefix and a
// prerelease suffix.
func ParseVersion(versionStr string) (APIVersion, error) {
	m := versionPattern.FindStringSubmatch(versionStr)
	if m == nil {
		return APIVersion{}, fmt.Errorf("invalid version format: %s", versionStr)
	}
	var parts [3]int
	for i := range parts {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version component %q: %w", m[i+1], err)
		}
		parts[i] = n
	}
	return APIVersion{Major: parts[0], Minor: parts[1], Patch: parts[2], Prerelease: m[4]}, nil
}

func mustParse(s string) APIVersion {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	CurrentVersion          = mustParse(constants.APIVersion)
	MinimumSupportedVersion = APIVersion{Major: 1}
)

// Compatibility is the verdict for a requested version.
type Compatibility struct {
	Requested  APIVersion `json:"requested_version"`
	Current    APIVersion `json:"current_version"`
	Compatible bool       `json:"compatible"`
	// Status is the HTTP status to answer with when not compatible.
	Status int    `json:"-"`
	Reason string `json:"reason,omitempty"`
}

// CheckCompatibility accepts any version from the minimum up to the current
// major version.
func CheckCompatibility(requested APIVersion) Compatibility {
	c := Compatibility{Requested: requested, Current: CurrentVersion}
	switch {
	case requested.Compare(MinimumSupportedVersion) < 0:
		c.Status = 426
		c.Reason = fmt.Sprintf("Version %s is no longer supported. Minimum supported version is %s", requested, MinimumSupportedVersion)
	case requested.Major > CurrentVersion.Major:
		c.Status = 501
		c.Reason = fmt.Sprintf("Version %s is not yet available. Current version is %s", requested, CurrentVersion)
	default:
		c.Compatible = true
	}
	return c
}

// SupportedRange renders the accepted version range.
func SupportedRange() string {
	return fmt.Sprintf("%s - %s", MinimumSupportedVersion, CurrentVersion)
}
