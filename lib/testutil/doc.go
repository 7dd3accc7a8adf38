// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sqlbridge packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests waiting on a worker do not hang forever when something goes
// wrong. They are the only place in the test suite where wall-clock
// timeouts are used.
//
// [DatabasePath] returns a fresh database file path inside t.TempDir,
// with a name unique within the test binary.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no sqlbridge-internal dependencies.
package testutil
