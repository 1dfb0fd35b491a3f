package version

// Name is the product name reported in telemetry origins and User-Agent
// strings.
const Name = "parley-core"

// Version and Commit are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)
