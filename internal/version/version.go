package version

import (
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via -ldflags "-X github.com/Faiz-k/Intentify/internal/version.Version=..."
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildTime     string `json:"build_time"`
	FormattedTime string `json:"-"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
}

// Get returns the version information. Binaries built with plain
// `go install` carry no ldflags, their commit comes from the embedded
// VCS stamp instead.
func Get() Info {
	commit, built := CommitID, BuildTime
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "unknown" && len(s.Value) >= 7 {
					commit = s.Value[:7]
				}
			case "vcs.time":
				if built == "unknown" {
					built = s.Value
				}
			}
		}
	}

	return Info{
		Version:       Version,
		GitCommit:     commit,
		BuildTime:     built,
		FormattedTime: formatBuildTime(built),
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
	}
}

func formatBuildTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Format("Mon Jan 2 15:04:05 2006")
}

// UserAgent is sent with every backend request.
func UserAgent() string {
	return "intentify-cli/" + Version + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}
