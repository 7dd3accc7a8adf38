// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"context"

	"zombiezen.com/go/sqlite"
)

// Caller is implemented by Client and *Pool.
type Caller interface {
	Conn(ctx context.Context, fn func(conn *sqlite.Conn) error) error
	ConnBlocking(fn func(conn *sqlite.Conn) error) error
}

var (
	_ Caller = Client{}
	_ Caller = (*Pool)(nil)
)

// Query runs fn through caller and returns its value.
//
//	value, err := sqlitebridge.Query(ctx, client, func(conn *sqlite.Conn) (string, error) {
//	    var value string
//	    err := sqlitex.Execute(conn, "SELECT val FROM testing WHERE id = ?", &sqlitex.ExecOptions{
//	        Args: []any{1},
//	        ResultFunc: func(stmt *sqlite.Stmt) error {
//	            value = stmt.ColumnText(0)
//	            return nil
//	        },
//	    })
//	    return value, err
//	})
//
// The value travels over a channel rather than a captured variable, so
// abandoning the wait (ctx ending) cannot race with the worker still
// running fn.
func Query[T any](ctx context.Context, caller Caller, fn func(conn *sqlite.Conn) (T, error)) (T, error) {
	values := make(chan T, 1)
	err := caller.Conn(ctx, deliver(values, fn))
	if err != nil {
		var zero T
		return zero, err
	}
	return <-values, nil
}

// QueryBlocking is Query without a context.
func QueryBlocking[T any](caller Caller, fn func(conn *sqlite.Conn) (T, error)) (T, error) {
	values := make(chan T, 1)
	if err := caller.ConnBlocking(deliver(values, fn)); err != nil {
		var zero T
		return zero, err
	}
	return <-values, nil
}

// Result is one member's outcome from QueryEach.
type Result[T any] struct {
	Value T
	Err   error
}

// QueryEach runs fn on every member of pool concurrently and returns
// one Result per member, in member order.
func QueryEach[T any](ctx context.Context, pool *Pool, fn func(conn *sqlite.Conn) (T, error)) []Result[T] {
	results := make([]Result[T], pool.Size())
	pool.each(true, func(index int, client Client) {
		results[index].Value, results[index].Err = Query(ctx, client, fn)
	})
	return results
}

// QueryEachBlocking runs fn on every member of pool in turn.
func QueryEachBlocking[T any](pool *Pool, fn func(conn *sqlite.Conn) (T, error)) []Result[T] {
	results := make([]Result[T], pool.Size())
	pool.each(false, func(index int, client Client) {
		results[index].Value, results[index].Err = QueryBlocking(client, fn)
	})
	return results
}

func deliver[T any](values chan<- T, fn func(*sqlite.Conn) (T, error)) func(*sqlite.Conn) error {
	return func(conn *sqlite.Conn) error {
		value, err := fn(conn)
		if err != nil {
			return err
		}
		values <- value
		return nil
	}
}
