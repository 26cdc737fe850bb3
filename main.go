package main

import (
	"runtime/debug"
	_ "time/tzdata"

	"github.com/thegrumpylion/calendar-mcp/cmd"
)

func main() {
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := moduleVersion(info); v != "" {
			cmd.SetVersion(v)
		}
	}
	cmd.Execute()
}

// moduleVersion is the main module version stamped by 'go install', or empty
// for local builds.
func moduleVersion(info *debug.BuildInfo) string {
	if info == nil || info.Main.Version == "(devel)" {
		return ""
	}
	return info.Main.Version
}
