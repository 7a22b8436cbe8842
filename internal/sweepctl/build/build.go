package build

// Variables here are set at build time using ldflags.
var (
	ReleaseVersion = "UNKNOWN"
	GitCommit      = "UNKNOWN"
	BuildTime      = "UNKNOWN"
	GoVersion      = "UNKNOWN"
)
