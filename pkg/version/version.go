// Package version exposes build metadata set with -ldflags.
package version

import "runtime/debug"

// Set at build time:
//
//	go build -ldflags "-X github.com/rshade/varbatch/pkg/version.version=v1.2.3"
//
//nolint:gochecknoglobals // ldflags targets
var (
	version = ""
	commit  = ""
)

// GetVersion returns the build version, falling back to the module version
// recorded by the go tool and then to "dev".
func GetVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// GetCommit returns the VCS revision the binary was built from, if known.
func GetCommit() string {
	if commit != "" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}
