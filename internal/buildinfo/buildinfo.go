// Package buildinfo describes the running binary. Release builds inject
// metadata at link time:
//
//	go build -ldflags "-X github.com/aidanlsb/wikimigrate/internal/buildinfo.Version=v0.3.0"
//
// Other builds fall back to the module and VCS data embedded by the Go
// toolchain.
package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Injected via ldflags for release binaries.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// ModulePath is reported when the binary carries no module information.
const ModulePath = "github.com/aidanlsb/wikimigrate"

// Info is the resolved description of the binary.
type Info struct {
	Version    string `json:"version"`
	ModulePath string `json:"module_path"`
	Commit     string `json:"commit,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified"`
	GoVersion  string `json:"go_version"`
	GOOS       string `json:"goos"`
	GOARCH     string `json:"goarch"`
}

// ReadBuildInfo is replaced in tests.
var ReadBuildInfo = debug.ReadBuildInfo

// Current resolves Info from embedded build data, filling gaps from ldflags.
func Current() Info {
	info := Info{
		Version:    "devel",
		ModulePath: ModulePath,
		GoVersion:  runtime.Version(),
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
	}

	if bi, ok := ReadBuildInfo(); ok && bi != nil {
		if bi.Main.Path != "" {
			info.ModulePath = bi.Main.Path
		}
		info.Version = normalize(bi.Main.Version)
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		settings := make(map[string]string, len(bi.Settings))
		for _, s := range bi.Settings {
			settings[s.Key] = s.Value
		}
		if v := settings["GOOS"]; v != "" {
			info.GOOS = v
		}
		if v := settings["GOARCH"]; v != "" {
			info.GOARCH = v
		}
		info.Commit = settings["vcs.revision"]
		info.CommitTime = settings["vcs.time"]
		info.Modified = strings.EqualFold(settings["vcs.modified"], "true")
	}

	if info.Version == "devel" && Version != "" {
		info.Version = normalize(Version)
	}
	if info.Commit == "" {
		info.Commit = Commit
	}
	if info.CommitTime == "" {
		info.CommitTime = Date
	}
	return info
}

func normalize(version string) string {
	if version == "" || version == "(devel)" {
		return "devel"
	}
	return version
}

// UserAgent is the User-Agent sent to the wiki.
func UserAgent() string {
	return "wikimigrate/" + Current().Version
}
