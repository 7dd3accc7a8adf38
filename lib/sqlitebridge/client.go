// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"context"
	"errors"

	"zombiezen.com/go/sqlite"
)

// Client is a handle to one SQLite connection owned by a dedicated
// worker goroutine. Operations are closures that the worker runs
// against the connection, one at a time, in the order they were
// submitted.
//
// Client is a small value: copies share the same worker, are safe for
// concurrent use, and closing through any copy closes the connection
// for all of them. The zero Client behaves as already closed.
//
// Every operation comes in two forms. The context-aware form (Conn,
// Close) waits for the result or for ctx to end; the blocking form
// (ConnBlocking, CloseBlocking) waits unconditionally. A cancelled
// context abandons the wait, not the operation: once a command is
// queued it runs to completion and its result is discarded.
//
// Closures must not panic and must not call back into a Client served
// by the same worker, which would deadlock.
type Client struct {
	box *mailbox
}

type openResult struct {
	client Client
	err    error
}

// Open starts a worker, opens its connection and returns a Client for
// it. If ctx ends before the connection is ready, Open returns
// ctx.Err(); the open still completes in the background and the
// connection is closed immediately.
func Open(ctx context.Context, cfg ClientConfig) (Client, error) {
	ready := make(chan openResult, 1)
	startWorker(cfg, (*sqlite.Conn).Close, func(client Client, err error) {
		ready <- openResult{client: client, err: err}
	})

	select {
	case result := <-ready:
		return result.client, result.err
	case <-ctx.Done():
		go func() {
			result := <-ready
			if result.err == nil {
				result.client.CloseBlocking()
			}
		}()
		return Client{}, ctx.Err()
	}
}

// OpenBlocking is Open without a context: it blocks the calling
// goroutine until the connection is ready or has failed to open.
func OpenBlocking(cfg ClientConfig) (Client, error) {
	ready := make(chan openResult, 1)
	startWorker(cfg, (*sqlite.Conn).Close, func(client Client, err error) {
		ready <- openResult{client: client, err: err}
	})
	result := <-ready
	return result.client, result.err
}

// Conn runs fn with the connection and returns fn's error unchanged.
// It returns ErrClosed if the connection has been closed, or ctx.Err()
// if ctx ends first.
func (c Client) Conn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return c.invoke(ctx, fn)
}

// ConnMut is Conn for operations that modify the database. The worker
// always has exclusive access to the connection, so the two are
// interchangeable; ConnMut exists to make write paths easy to find.
func (c Client) ConnMut(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return c.invoke(ctx, fn)
}

// ConnBlocking runs fn with the connection, blocking until it
// completes.
func (c Client) ConnBlocking(fn func(conn *sqlite.Conn) error) error {
	return c.invoke(context.Background(), fn)
}

// ConnMutBlocking is the blocking form of ConnMut.
func (c Client) ConnMutBlocking(fn func(conn *sqlite.Conn) error) error {
	return c.invoke(context.Background(), fn)
}

// Close closes the connection and stops the worker. After Close
// returns nil, every operation on this Client or any copy returns
// ErrClosed. Closing an already closed Client returns nil.
//
// If SQLite refuses to close the connection, Close returns that error
// and the connection stays open and usable; Close may be retried.
func (c Client) Close(ctx context.Context) error {
	if c.box == nil {
		return nil
	}
	cmd := c.box.command(commandShutdown, nil)
	if err := c.box.send(ctx, cmd); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return err
	}
	err := c.box.wait(ctx, cmd.reply)
	if errors.Is(err, errNoReply) {
		return nil
	}
	return err
}

// CloseBlocking is Close without a context.
func (c Client) CloseBlocking() error {
	return c.Close(context.Background())
}

// Done returns a channel that is closed once the worker has exited and
// its connection is gone.
func (c Client) Done() <-chan struct{} {
	if c.box == nil {
		return closedChannel
	}
	return c.box.done
}

var closedChannel = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (c Client) invoke(ctx context.Context, fn func(*sqlite.Conn) error) error {
	if c.box == nil {
		return ErrClosed
	}
	cmd := c.box.command(commandInvoke, fn)
	if err := c.box.send(ctx, cmd); err != nil {
		return err
	}
	err := c.box.wait(ctx, cmd.reply)
	if errors.Is(err, errNoReply) {
		return ErrClosed
	}
	return err
}
