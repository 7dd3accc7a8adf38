// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var databaseCounter atomic.Uint64

// DatabasePath returns a path for a new SQLite database file inside
// t.TempDir. The file does not exist yet; the directory is removed
// when the test completes.
//
//	path := testutil.DatabasePath(t, "kv") // <tmp>/kv-1.db
func DatabasePath(t testing.TB, prefix string) string {
	t.Helper()
	name := fmt.Sprintf("%s-%d.db", prefix, databaseCounter.Add(1))
	return filepath.Join(t.TempDir(), name)
}
