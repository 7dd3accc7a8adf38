// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the sqlbridge configuration file.
//
// The file comes from exactly one place: the --config flag (via
// [LoadFile]) or the SQLBRIDGE_CONFIG environment variable (via
// [Load]). There is no discovery. YAML is the primary format; files
// named *.json or *.jsonc are read as JSON with comments.
//
// After loading, ${VAR} and ${VAR:-default} are expanded in
// database.path. No other field reads the environment.
//
//	database:
//	  path: ${SQLBRIDGE_HOME:-/var/lib/sqlbridge}/state.db
//	  connections: 4
//	  pragmas:
//	    - {name: foreign_keys, value: "ON"}
//	logging:
//	  level: debug
//	kv:
//	  compression: lz4
package config
