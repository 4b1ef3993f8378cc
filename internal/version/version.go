package version

// Version is the current version of the Warptalk CLI.
// This value can be overridden at build time using:
//   go build -ldflags="-X 'github.com/BioHazard786/Warptalk/internal/version.Version=v1.0.0'"
var Version = "dev"

// Protocol is the signaling protocol revision reported by the server health check.
const Protocol = "1"
