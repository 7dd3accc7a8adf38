// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"fmt"
	"regexp"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

var (
	pragmaNamePattern  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pragmaValuePattern = regexp.MustCompile(`^-?[A-Za-z0-9_.]+$`)
)

// symbolicPragmaValues maps the keywords some pragmas accept on
// assignment to the integers they report when read back.
var symbolicPragmaValues = map[string]map[string]string{
	"synchronous": {"off": "0", "normal": "1", "full": "2", "extra": "3"},
	"temp_store":  {"default": "0", "file": "1", "memory": "2"},
	"auto_vacuum": {"none": "0", "full": "1", "incremental": "2"},
}

// SetPragma assigns value to the named pragma on conn and reads it
// back. If the setting did not take effect, SetPragma returns a
// *ConfigMismatchError. Symbolic values (ON, NORMAL, MEMORY, ...)
// compare equal to their numeric forms.
//
// Name and value are restricted to identifier characters (plus a
// leading minus and dots in values) because pragmas cannot be bound
// as statement parameters.
func SetPragma(conn *sqlite.Conn, name, value string) error {
	if !pragmaNamePattern.MatchString(name) {
		return fmt.Errorf("sqlitebridge: invalid pragma name %q", name)
	}
	if !pragmaValuePattern.MatchString(value) {
		return fmt.Errorf("sqlitebridge: invalid value %q for pragma %s", value, name)
	}

	if err := sqlitex.ExecuteTransient(conn, fmt.Sprintf("PRAGMA %s = %s", name, value), nil); err != nil {
		return fmt.Errorf("sqlitebridge: PRAGMA %s = %s: %w", name, value, err)
	}

	got, err := ReadPragma(conn, name)
	if err != nil {
		return err
	}
	if normalizePragmaValue(name, got) != normalizePragmaValue(name, value) {
		return &ConfigMismatchError{Name: name, Expected: value, Got: got}
	}
	return nil
}

// ReadPragma returns the first column of the first row produced by
// "PRAGMA name", or "" if the pragma returns no rows.
func ReadPragma(conn *sqlite.Conn, name string) (string, error) {
	if !pragmaNamePattern.MatchString(name) {
		return "", fmt.Errorf("sqlitebridge: invalid pragma name %q", name)
	}

	var value string
	found := false
	err := sqlitex.ExecuteTransient(conn, "PRAGMA "+name, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if !found {
				value = stmt.ColumnText(0)
				found = true
			}
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("sqlitebridge: reading PRAGMA %s: %w", name, err)
	}
	return value, nil
}

func normalizePragmaValue(name, value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if symbols, ok := symbolicPragmaValues[strings.ToLower(name)]; ok {
		if number, ok := symbols[value]; ok {
			return number
		}
	}
	switch value {
	case "on", "yes", "true":
		return "1"
	case "off", "no", "false":
		return "0"
	}
	return value
}
