// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// sqlbridge is a command-line front end for lib/sqlitebridge and
// lib/kvstore. Writes ("exec", "kv put/del/purge") go through a single
// writer connection; reads ("query", "kv get/keys") go through a pool
// of reader connections, and "each" runs one statement on every
// reader to show per-connection results.
//
// Configuration comes from --config, then $SQLBRIDGE_CONFIG, then
// built-in defaults; --db and --conns override the file. Output is
// text on a terminal and JSON otherwise unless --format says
// otherwise. --metrics dumps the connection worker metrics in the
// Prometheus text format to stderr when the command finishes.
package main
