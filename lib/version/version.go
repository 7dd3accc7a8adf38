// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags -X at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" when the tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version, set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns "version (commit[-dirty], buildtime)".
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Print writes the --version output for the named binary: the build
// info, the Go toolchain and platform, and the SQLite driver version
// linked into the binary.
func Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s %s\n", name, Info())
	fmt.Fprintf(w, "  Go: %s\n  Platform: %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if driver := moduleVersion("zombiezen.com/go/sqlite"); driver != "" {
		fmt.Fprintf(w, "  SQLite driver: zombiezen.com/go/sqlite %s\n", driver)
	}
}

// moduleVersion returns the version of the named dependency recorded
// in the binary, or "" when build info is unavailable (as in tests).
func moduleVersion(path string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, dep := range info.Deps {
		if dep.Path == path {
			return dep.Version
		}
	}
	return ""
}
