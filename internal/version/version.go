// Package version provides build and version information for decisiongraph.
package version

// Version is the current release version.
// Override at build time with:
//
//	go build -ldflags "-X github.com/AaronLay10/decisiongraph/internal/version.Version=x.y.z"
var Version = "0.3.0"

// UserAgent identifies the simulator to brokers and databases.
func UserAgent() string { return "agentsim/" + Version }
