package build

import (
	"fmt"
	"strings"
)

// Version fields settable at link time via -ldflags.
var (
	// Commit stores the current git revision.
	Commit string

	// CommitHash stores the current git full commit hash.
	CommitHash string

	// GoVersion stores the Go version used for the build.
	GoVersion string

	// RawTags contains the raw set of build tags, separated by commas.
	RawTags string
)

// Semantic versioning components.
const (
	appMajor uint = 0
	appMinor uint = 2
	appPatch uint = 0

	// appPreRelease marks the version as pre-release. No dashes allowed.
	appPreRelease = "beta"
)

// Version returns the application version as a properly formed string per
// the semantic versioning 2.0.0 spec (https://semver.org/).
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)

	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}

	return version
}

// Tags returns the list of build tags compiled into the binary.
func Tags() []string {
	if len(RawTags) == 0 {
		return nil
	}

	return strings.Split(RawTags, ",")
}
