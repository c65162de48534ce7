// Package version holds the build metadata stamped in with -ldflags -X.
package version

import "strings"

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info is the one-line banner printed by `lumio version`.
func Info() string {
	return "lumio " + Version + " (" + GitCommit + ") built at " + BuildTime
}

// UserAgent identifies Lumio to the chat platform APIs it calls.
func UserAgent() string {
	return "Lumio/" + strings.TrimPrefix(Version, "v")
}
