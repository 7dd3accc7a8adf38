// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version holds build information for the sqlbridge binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/sqlbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// They default to "unknown" and "0.1.0-dev" in development builds and
// tests.
package version
