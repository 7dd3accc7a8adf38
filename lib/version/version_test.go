// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime, savedVersion := GitCommit, GitDirty, BuildTime, Version
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = savedCommit, savedDirty, savedTime, savedVersion
	})

	GitCommit, GitDirty, BuildTime, Version = "abc1234", "false", "2026-03-01T00:00:00Z", "1.2.3"
	if got, want := Info(), "1.2.3 (abc1234, 2026-03-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}

	GitDirty = "true"
	if got, want := Info(), "1.2.3 (abc1234-dirty, 2026-03-01T00:00:00Z)"; got != want {
		t.Errorf("dirty Info() = %q, want %q", got, want)
	}
}

func TestPrint(t *testing.T) {
	var buffer bytes.Buffer
	Print(&buffer, "sqlbridge")

	output := buffer.String()
	if !strings.HasPrefix(output, "sqlbridge "+Info()+"\n") {
		t.Errorf("output does not start with name and info:\n%s", output)
	}
	if !strings.Contains(output, "Go: go") {
		t.Errorf("output lacks Go version:\n%s", output)
	}
}
