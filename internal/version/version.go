// Package version provides the engine's release version and helpers
// used to order schema migrations.
package version

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the engine's current released version.
var Version = "0.1.0"

// DevVersion is the engine's current development version.
var DevVersion = "0.1.0"

func GetCurrentVersion(mode string) string {
	if mode == "dev" {
		return DevVersion
	}
	return Version
}

// GetMinorVersion returns the "major.minor" part of a version string.
func GetMinorVersion(version string) string {
	versionList := strings.Split(version, ".")
	if len(versionList) < 3 {
		return ""
	}
	return versionList[0] + "." + versionList[1]
}

func IsVersionGreaterOrEqualThan(version, target string) bool {
	return semver.Compare(fmt.Sprintf("v%s", version), fmt.Sprintf("v%s", target)) > -1
}

func IsVersionGreaterThan(version, target string) bool {
	return semver.Compare(fmt.Sprintf("v%s", version), fmt.Sprintf("v%s", target)) > 0
}

// SortVersion sorts version strings in ascending semver order.
type SortVersion []string

func (s SortVersion) Len() int {
	return len(s)
}

func (s SortVersion) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

func (s SortVersion) Less(i, j int) bool {
	return semver.Compare(fmt.Sprintf("v%s", s[i]), fmt.Sprintf("v%s", s[j])) < 0
}
