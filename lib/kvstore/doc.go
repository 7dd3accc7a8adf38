// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package kvstore is a small key-value store on a single SQLite file,
// built on sqlitebridge: one writer Client serializes every mutation
// and a read-only Pool serves lookups in parallel.
//
// Values are CBOR encoded with lib/codec. Encoded values at or above
// the configured threshold are compressed with LZ4 or zstd, falling
// back to no compression when that would not shrink them. Each row
// records the encoded size and a BLAKE3 checksum of the encoded bytes;
// [Store.Get] verifies both and returns [ErrCorrupt] on mismatch.
//
// Entries may carry a time to live. Expired entries are invisible to
// Get and Keys immediately and are removed by [Store.Purge].
package kvstore
