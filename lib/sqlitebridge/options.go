// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"fmt"
	"log/slog"
	"runtime"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/sqlbridge/lib/clock"
)

// MemoryPath is the path used when a config leaves Path empty. Every
// connection opened on it gets its own private, empty database.
const MemoryPath = ":memory:"

// DefaultQueueDepth is the number of commands a worker buffers before
// callers start waiting to enqueue.
const DefaultQueueDepth = 128

// Pragma is one PRAGMA assignment applied, and verified, when a
// connection opens.
type Pragma struct {
	Name  string
	Value string
}

// OpenOptions are the engine-specific settings for one connection.
type OpenOptions struct {
	// Flags are passed to sqlite.OpenConn. Zero selects zombiezen's
	// defaults (read-write, create, WAL, URI).
	Flags sqlite.OpenFlags

	// Pragmas are applied in order after the connection opens. Each
	// one is read back; a value that did not take effect fails the
	// open with a *ConfigMismatchError.
	Pragmas []Pragma
}

// ConfigFunc produces the OpenOptions for a connection. It is invoked
// once per connection, on the worker goroutine that will own it.
type ConfigFunc func() (OpenOptions, error)

// StandardOptions returns read-write options with the standard pragma
// set for file-backed databases: WAL journal, NORMAL synchronous,
// five second busy timeout, 8 MB page cache, and in-memory temp
// storage. It has the ConfigFunc signature so it can be passed
// directly as ClientConfig.Configure.
//
// In-memory databases cannot use WAL, so opening MemoryPath with these
// options fails with ErrConfigMismatch.
func StandardOptions() (OpenOptions, error) {
	return OpenOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
		Pragmas: []Pragma{
			{Name: "journal_mode", Value: "wal"},
			{Name: "synchronous", Value: "NORMAL"},
			{Name: "busy_timeout", Value: "5000"},
			{Name: "cache_size", Value: "-8192"},
			{Name: "temp_store", Value: "MEMORY"},
		},
	}, nil
}

// ReadOnlyOptions returns options that open an existing database for
// reading only. This is the default for pools.
func ReadOnlyOptions() (OpenOptions, error) {
	return OpenOptions{
		Flags: sqlite.OpenReadOnly | sqlite.OpenURI,
		Pragmas: []Pragma{
			{Name: "busy_timeout", Value: "5000"},
		},
	}, nil
}

// ClientConfig holds the parameters for opening a single Client. All
// fields are optional.
type ClientConfig struct {
	// Path is the filesystem path (or SQLite URI) of the database.
	// Empty means MemoryPath.
	Path string

	// Configure produces the per-connection OpenOptions. Nil means
	// the zero OpenOptions: default flags, no pragmas.
	Configure ConfigFunc

	// QueueDepth bounds the number of commands buffered ahead of the
	// worker. Zero or negative means DefaultQueueDepth.
	QueueDepth int

	// Logger receives connection lifecycle messages. Nil discards
	// them.
	Logger *slog.Logger

	// Metrics receives per-command telemetry. Nil means Noop().
	Metrics Collector

	// Clock times queue waits and execution. Nil means clock.Real().
	Clock clock.Clock
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Path == "" {
		c.Path = MemoryPath
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = Noop()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// PoolConfig holds the parameters for opening a Pool. Every member is
// opened with the same settings.
type PoolConfig struct {
	// Path is the database every member opens. Empty means
	// MemoryPath, in which case each member has its own independent
	// in-memory database.
	Path string

	// Configure produces the per-connection OpenOptions. Nil means
	// ReadOnlyOptions: pools exist for parallel reads, and writes
	// belong on a single Client.
	Configure ConfigFunc

	// NumConns is the number of members. Zero means the number of
	// logical CPUs available to the process (at least 1). Negative
	// values are rejected.
	NumConns int

	// QueueDepth, Logger, Metrics and Clock apply to every member;
	// see ClientConfig.
	QueueDepth int
	Logger     *slog.Logger
	Metrics    Collector
	Clock      clock.Clock
}

func (c PoolConfig) size() (int, error) {
	if c.NumConns < 0 {
		return 0, fmt.Errorf("sqlitebridge: NumConns must not be negative, got %d", c.NumConns)
	}
	if c.NumConns > 0 {
		return c.NumConns, nil
	}
	return max(runtime.NumCPU(), 1), nil
}

func (c PoolConfig) member() ClientConfig {
	configure := c.Configure
	if configure == nil {
		configure = ReadOnlyOptions
	}
	return ClientConfig{
		Path:       c.Path,
		Configure:  configure,
		QueueDepth: c.QueueDepth,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
		Clock:      c.Clock,
	}.withDefaults()
}
