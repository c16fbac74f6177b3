package buildinfo

import "fmt"

// These variables are set via -ldflags at build time:
//
//	-X 'github.com/m3rciful/captionrelay/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/captionrelay/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/captionrelay/core/buildinfo.Date=2025-08-30T12:00:00Z'
var (
	// Version reports the semantic version or tag of the build.
	Version = "dev"
	// Commit reports the source control commit used for the build.
	Commit = "local"
	// Date reports the build timestamp in RFC3339 format.
	Date = ""
)

// String renders a one-line build description for the version command.
func String() string {
	date := Date
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, date)
}
