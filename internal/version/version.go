package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name used in version output and the HTTP User-Agent.
const Name = "yadisk-sync"

var (
	// Version is the semantic version (injected at build time).
	Version = "dev"
	// Commit is the git commit SHA (injected at build time).
	Commit = "unknown"
	// BuildDate is the build timestamp (injected at build time).
	BuildDate = "unknown"
)

// Info returns formatted version information.
func Info() string {
	return fmt.Sprintf("%s %s (%s, built %s, %s)", Name, Version, Commit, BuildDate, runtime.Version())
}

// UserAgent identifies the binary to remote storage APIs.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", Name, Version, runtime.GOOS, runtime.GOARCH)
}
