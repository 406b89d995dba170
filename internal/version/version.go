// Package version holds the build metadata stamped in at link time, e.g.
//
//	go build -ldflags "-X github.com/MeKo-Tech/bookscan/internal/version.Version=v1.2.0"
package version

import "fmt"

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the stamped build metadata.
func Get() Build {
	return Build{Version: Version, Commit: GitCommit, Date: BuildDate}
}

func (b Build) String() string {
	return fmt.Sprintf("bookscan version %s\nCommit: %s\nDate: %s", b.Version, b.Commit, b.Date)
}
