package cli

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/aidanlsb/wikimigrate/internal/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	setVar(t, &buildinfo.ReadBuildInfo, func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.24.1",
			Main:      debug.Module{Path: buildinfo.ModulePath, Version: "v1.2.3"},
			Settings:  []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
		}, true
	})

	t.Run("json", func(t *testing.T) {
		useJSON(t)
		resp := parseResponse(t, captureStdout(t, func() {
			if err := versionCmd.RunE(versionCmd, nil); err != nil {
				t.Fatalf("version: %v", err)
			}
		}))
		build, _ := resp.Data["build"].(map[string]interface{})
		if !resp.OK || build["version"] != "v1.2.3" || build["commit"] != "deadbeef" {
			t.Fatalf("response = %+v", resp)
		}
		if resp.Data["user_agent"] != "wikimigrate/v1.2.3" {
			t.Fatalf("user_agent = %v", resp.Data["user_agent"])
		}
	})

	t.Run("text", func(t *testing.T) {
		out := captureStdout(t, func() {
			if err := versionCmd.RunE(versionCmd, nil); err != nil {
				t.Fatalf("version: %v", err)
			}
		})
		for _, want := range []string{"wikimigrate v1.2.3", "commit: deadbeef", "user agent: wikimigrate/v1.2.3"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})
}
