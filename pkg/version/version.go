package version

// Set with -ldflags "-X github.com/charlie0129/vstab/pkg/version.Version=..."
var (
	Version   = "UNKNOWN"
	GitCommit = "UNKNOWN"
)
