package core

// Build metadata, injected with:
//
//	go build -ldflags "-X postforge/core.Version=$(git describe --tags --always) \
//	  -X postforge/core.GitCommit=$(git rev-parse --short HEAD) \
//	  -X postforge/core.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)" .
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo formats the build metadata, e.g.
// "v1.2.0 (built 2025-01-15T10:30:00Z, commit abc1234)".
func VersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}
