// Package version derives the binary's version and module path from the
// linker override or the build info the Go toolchain embeds.
package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const fallbackModule = "pkt.systems/fabricmcp"

// buildVersion wins over detection when stamped at link time:
// -ldflags "-X pkt.systems/fabricmcp/internal/version.buildVersion=v1.2.3".
var buildVersion = ""

// Current returns the release version: the linker override first, then the
// module version from build info, then a VCS pseudo-version.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if v := vcsPseudoVersion(info); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

// Module returns this binary's module path.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return fallbackModule
}

// vcsPseudoVersion assembles a v0.0.0 pseudo-version from the embedded VCS
// stamp, marking locally modified trees with +dirty.
func vcsPseudoVersion(info *debug.BuildInfo) string {
	var revision, stamp string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
	if dirty {
		v += "+dirty"
	}
	return v
}
