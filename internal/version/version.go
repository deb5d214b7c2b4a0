package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/trbr/internal/version.Version=v0.4.0 \
//	                   -X github.com/muurk/trbr/internal/version.Commit=abc123"
//
// Otherwise they come from the VCS stamp in the build info, or fall back
// to "dev" with a timestamp.
var (
	// Version is the semantic version of trbr
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

// Info is the version report printed by `trbr version`.
type Info struct {
	Version   string `yaml:"version" msgpack:"version"`
	Commit    string `yaml:"commit" msgpack:"commit"`
	GoVersion string `yaml:"go_version" msgpack:"go_version"`
	Platform  string `yaml:"platform" msgpack:"platform"`
}

func init() {
	if Version == "" || Commit == "" {
		populateFromBuildInfo()
	}

	if Version == "" {
		Version = fmt.Sprintf("dev-%s", time.Now().Format("20060102-150405"))
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func populateFromBuildInfo() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	// A tagged module build carries its own version.
	if Version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	var vcsRevision, vcsModified, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			vcsRevision = setting.Value
		case "vcs.modified":
			vcsModified = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}

	if Commit == "" && vcsRevision != "" {
		Commit = vcsRevision
		if len(Commit) > 7 {
			Commit = Commit[:7]
		}
		if vcsModified == "true" {
			Commit += "-dirty"
		}
	}

	if Version == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			Version = fmt.Sprintf("dev-%s", t.Format("20060102"))
		}
	}
}

// Get returns the version report for this binary.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}
