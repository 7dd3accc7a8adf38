// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single CBOR configuration used by sqlbridge.
//
// The key-value store encodes every value with [Marshal] before it is
// compressed and written, and the CLI's --format=cbor output streams
// rows through [NewEncoder]. Encoding is deterministic (RFC 8949
// §4.2), which keeps stored checksums stable: the same value always
// hashes the same way.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
