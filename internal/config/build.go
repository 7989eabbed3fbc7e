package config

import "fmt"

// Linker-injected build metadata, set at compile time:
//
//	go build -ldflags "-X sensorpulse/internal/config.version=1.2.3 \
//	    -X sensorpulse/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X sensorpulse/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/sensord
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}

// String renders the build for `sensord --version`.
func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", b.Version, b.Commit, b.BuildTime)
}
