// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"errors"
	"fmt"
)

// ErrClosed is returned when the worker behind a Client is gone: the
// connection was closed, or the worker exited before answering.
// Errors returned by caller-supplied closures are never translated
// into ErrClosed, so errors.Is(err, ErrClosed) distinguishes "the
// connection is gone" from "your operation failed".
var ErrClosed = errors.New("sqlitebridge: connection closed")

// ErrConfigMismatch is matched (via errors.Is) by every
// *ConfigMismatchError.
var ErrConfigMismatch = errors.New("sqlitebridge: configuration mismatch")

// ConfigMismatchError reports a setting that did not take effect: the
// value read back after applying it differs from the requested value.
type ConfigMismatchError struct {
	Name     string
	Expected string
	Got      string
}

func (e *ConfigMismatchError) Error() string {
	return fmt.Sprintf("sqlitebridge: updating pragma %s: expected %q, got %q", e.Name, e.Expected, e.Got)
}

// Is reports whether target is ErrConfigMismatch.
func (e *ConfigMismatchError) Is(target error) bool {
	return target == ErrConfigMismatch
}

// errNoReply marks a command whose worker exited without answering.
// It never escapes the package: invoke maps it to ErrClosed and close
// maps it to success.
var errNoReply = errors.New("sqlitebridge: worker exited without reply")
