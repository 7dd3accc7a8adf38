// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitebridge gives goroutines shared, ordered access to
// SQLite connections without sharing the connections themselves.
//
// Each connection is owned by a worker goroutine pinned to its own OS
// thread. Callers never hold a *sqlite.Conn; they submit closures, and
// the worker runs them one at a time, in submission order, and sends
// back the closure's error. A [Client] is a handle to one worker. A
// [Pool] is a fixed set of Clients on the same database with round
// robin dispatch, for parallel reads.
//
// # Usage
//
//	client, err := sqlitebridge.Open(ctx, sqlitebridge.ClientConfig{
//	    Path:      "/var/bureau/state/state.db",
//	    Configure: sqlitebridge.StandardOptions,
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer client.CloseBlocking()
//
//	err = client.ConnMut(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "INSERT INTO state (key, value) VALUES (?, ?)", &sqlitex.ExecOptions{
//	        Args: []any{key, value},
//	    })
//	})
//
// [Query] and [QueryEach] wrap the closure API for operations that
// produce a value.
//
// # Lifetime
//
// A connection closes when [Client.Close] succeeds, or when every copy
// of the Client has become unreachable; in the second case the close
// happens after garbage collection and its outcome is only logged.
// Once a worker is gone every call returns [ErrClosed]. Errors from
// closures are returned unchanged and never look like ErrClosed.
//
// # Configuration
//
// [ClientConfig.Configure] runs on the worker before the connection
// opens and returns the open flags plus a list of pragmas. Every
// pragma is read back after it is set; a value that did not stick
// fails the open with a [*ConfigMismatchError]. [StandardOptions] is
// the usual choice for a file-backed writer, and pools default to
// [ReadOnlyOptions].
package sqlitebridge
