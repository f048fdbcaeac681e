package config

// Linker-injected build metadata. Set at compile time via -ldflags, e.g.:
//
//	go build -ldflags "-X bannerly/internal/config.version=1.4.0 \
//	    -X bannerly/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X bannerly/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Defaults apply during local development when ldflags are not set.
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
