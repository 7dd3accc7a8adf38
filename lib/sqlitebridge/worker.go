// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlbridge/lib/clock"
)

type commandKind uint8

const (
	// commandInvoke runs a caller-supplied operation against the
	// connection and replies with its error.
	commandInvoke commandKind = iota

	// commandShutdown closes the connection. On success the worker
	// exits; on failure the connection stays in service.
	commandShutdown
)

func (kind commandKind) String() string {
	switch kind {
	case commandInvoke:
		return "invoke"
	case commandShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

// command is one unit of work for a worker. The reply channel has
// capacity 1 and receives exactly one value, so the worker never
// blocks delivering a result that nobody is waiting for.
type command struct {
	kind     commandKind
	op       func(*sqlite.Conn) error
	reply    chan error
	enqueued time.Time
}

// mailbox is the send side of a worker, shared by every copy of a
// Client. When the last reference to a mailbox disappears, a cleanup
// closes the queue and the worker releases its connection.
type mailbox struct {
	queue chan<- command
	done  <-chan struct{}
	clock clock.Clock
}

func (m *mailbox) command(kind commandKind, op func(*sqlite.Conn) error) command {
	return command{
		kind:     kind,
		op:       op,
		reply:    make(chan error, 1),
		enqueued: m.clock.Now(),
	}
}

// send enqueues cmd. It fails with ErrClosed if the worker has already
// exited, and with ctx.Err() if ctx ends while the queue is full.
func (m *mailbox) send(ctx context.Context, cmd command) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.queue <- cmd:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks until the command's reply arrives. It returns errNoReply
// when the worker exits without answering, and ctx.Err() if ctx ends
// first; in that case the command still runs and its reply is dropped.
func (m *mailbox) wait(ctx context.Context, reply <-chan error) error {
	select {
	case err := <-reply:
		return err
	case <-m.done:
		// The worker replies before it exits, so a reply racing with
		// done is already buffered.
		select {
		case err := <-reply:
			return err
		default:
			return errNoReply
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// worker owns one connection. Only the worker goroutine touches conn.
type worker struct {
	id        string
	path      string
	conn      *sqlite.Conn
	closeConn func(*sqlite.Conn) error
	queue     <-chan command
	done      chan<- struct{}
	logger    *slog.Logger
	metrics   Collector
	clock     clock.Clock
}

// startWorker opens a connection on a new goroutine pinned to its own
// OS thread and reports the outcome through report, exactly once. On
// success the goroutine keeps serving commands until it is shut down
// or released. closeConn closes the connection; a failed close leaves
// the connection installed.
func startWorker(cfg ClientConfig, closeConn func(*sqlite.Conn) error, report func(Client, error)) {
	cfg = cfg.withDefaults()
	go func() {
		// Never unlocked: the thread terminates with the worker, and
		// the connection never migrates between threads.
		runtime.LockOSThread()

		conn, err := openConn(cfg)
		if err != nil {
			report(Client{}, err)
			return
		}

		queue := make(chan command, cfg.QueueDepth)
		done := make(chan struct{})
		box := &mailbox{queue: queue, done: done, clock: cfg.Clock}
		runtime.AddCleanup(box, func(queue chan command) { close(queue) }, queue)

		w := &worker{
			id:        uuid.NewString(),
			path:      cfg.Path,
			conn:      conn,
			closeConn: closeConn,
			queue:     queue,
			done:      done,
			metrics:   cfg.Metrics,
			clock:     cfg.Clock,
		}
		w.logger = cfg.Logger.With("worker", w.id, "path", w.path)

		w.logger.Info("sqlite connection opened")
		w.metrics.WorkerStarted()
		report(Client{box: box}, nil)
		w.serve()
	}()
}

// openConn builds the OpenOptions, opens the connection and applies
// the requested pragmas. A connection that fails verification is
// closed before the error is returned.
func openConn(cfg ClientConfig) (*sqlite.Conn, error) {
	var options OpenOptions
	if cfg.Configure != nil {
		var err error
		options, err = cfg.Configure()
		if err != nil {
			return nil, fmt.Errorf("sqlitebridge: configuring %s: %w", cfg.Path, err)
		}
	}

	var flags []sqlite.OpenFlags
	if options.Flags != 0 {
		flags = append(flags, options.Flags)
	}
	conn, err := sqlite.OpenConn(cfg.Path, flags...)
	if err != nil {
		return nil, fmt.Errorf("sqlitebridge: opening %s: %w", cfg.Path, err)
	}

	for _, pragma := range options.Pragmas {
		if err := SetPragma(conn, pragma.Name, pragma.Value); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlitebridge: opening %s: %w", cfg.Path, err)
		}
	}
	return conn, nil
}

// serve executes commands in arrival order until a shutdown succeeds
// or the queue is closed because every Client handle is gone.
func (w *worker) serve() {
	defer close(w.done)
	defer w.metrics.WorkerStopped()

	for cmd := range w.queue {
		started := w.clock.Now()
		wait := started.Sub(cmd.enqueued)

		switch cmd.kind {
		case commandInvoke:
			err := cmd.op(w.conn)
			w.metrics.ObserveCommand(cmd.kind.String(), wait, clock.Since(w.clock, started), err)
			cmd.reply <- err

		case commandShutdown:
			err := w.closeConn(w.conn)
			w.metrics.ObserveCommand(cmd.kind.String(), wait, clock.Since(w.clock, started), err)
			if err != nil {
				w.logger.Warn("sqlite connection close failed, connection stays open", "error", err)
				cmd.reply <- err
				continue
			}
			w.conn = nil
			w.logger.Info("sqlite connection closed")
			cmd.reply <- nil
			return
		}
	}

	// Every handle was released without an explicit close. Nobody is
	// listening for the outcome, so a close error is only logged.
	if err := w.closeConn(w.conn); err != nil {
		w.logger.Warn("sqlite connection close failed after release", "error", err)
		return
	}
	w.conn = nil
	w.logger.Debug("sqlite connection released")
}
