package core

import "time"

// Version is the application version, set at build time via ldflags:
//
//	go build -ldflags "-X srdash/core.Version=$(git describe --tags --always)" .
//
// If not set at build time, defaults to "dev".
var Version = "dev"

// BuildTime is the build timestamp, set at build time via ldflags.
var BuildTime = "unknown"

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// startedAt is captured at package init and used for uptime reporting.
var startedAt = time.Now()

// GetVersionInfo returns a formatted version information string.
//
// Examples:
//   - "v1.0.0 (built 2024-01-15T10:30:00Z, commit abc1234)"
//   - "dev (built unknown, commit unknown)"
func GetVersionInfo() string {
	return Version + " (built " + BuildTime + ", commit " + GitCommit + ")"
}

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(startedAt)
}
