// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for testability.
//
// Production code accepts a Clock instead of calling time.Now
// directly. Real() reads the wall clock; Fake() returns a clock that
// moves only when the test advances it, so expiry and latency
// measurements are deterministic.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	store, _ := kvstore.Open(ctx, kvstore.Config{Path: path, Clock: c})
//	// ... Put with a one-minute TTL ...
//	c.Advance(2 * time.Minute) // the entry is now expired
package clock
