// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sqlbridge/lib/config"
	"github.com/bureau-foundation/sqlbridge/lib/kvstore"
	"github.com/bureau-foundation/sqlbridge/lib/sqlitebridge"
)

// environment is everything a command needs from the command line and
// configuration.
type environment struct {
	cfg     *config.Config
	logger  *slog.Logger
	stdout  io.Writer
	format  string
	metrics sqlitebridge.Collector
	ttl     time.Duration
}

func dispatch(ctx context.Context, env *environment, args []string) error {
	command, rest := args[0], args[1:]
	env.logger = env.logger.With("subcommand", command)
	switch command {
	case "exec":
		return runExec(ctx, env, rest)
	case "query":
		return runQuery(ctx, env, rest)
	case "each":
		return runEach(ctx, env, rest)
	case "kv":
		return runKV(ctx, env, rest)
	default:
		return usagef("unknown command %q", command)
	}
}

func (env *environment) writerConfig() sqlitebridge.ClientConfig {
	return sqlitebridge.ClientConfig{
		Path:       env.cfg.Database.Path,
		Configure:  writerOptions(env.cfg.Database),
		QueueDepth: env.cfg.Database.QueueDepth,
		Logger:     env.logger,
		Metrics:    env.metrics,
	}
}

func (env *environment) readerConfig() sqlitebridge.PoolConfig {
	return sqlitebridge.PoolConfig{
		Path:       env.cfg.Database.Path,
		Configure:  readerOptions(env.cfg.Database),
		NumConns:   env.cfg.Database.Connections,
		QueueDepth: env.cfg.Database.QueueDepth,
		Logger:     env.logger,
		Metrics:    env.metrics,
	}
}

func configuredPragmas(database config.DatabaseConfig) []sqlitebridge.Pragma {
	pragmas := make([]sqlitebridge.Pragma, 0, len(database.Pragmas))
	for _, pragma := range database.Pragmas {
		pragmas = append(pragmas, sqlitebridge.Pragma{Name: pragma.Name, Value: pragma.Value})
	}
	return pragmas
}

// writerOptions is the standard set plus configured pragmas. In-memory
// databases cannot use WAL, so they get the configured pragmas alone.
func writerOptions(database config.DatabaseConfig) sqlitebridge.ConfigFunc {
	return func() (sqlitebridge.OpenOptions, error) {
		var options sqlitebridge.OpenOptions
		if database.Path != sqlitebridge.MemoryPath {
			var err error
			if options, err = sqlitebridge.StandardOptions(); err != nil {
				return options, err
			}
		}
		options.Pragmas = append(options.Pragmas, configuredPragmas(database)...)
		return options, nil
	}
}

// readerOptions returns nil, the pool's read-only default, unless the
// configuration asks for writable readers.
func readerOptions(database config.DatabaseConfig) sqlitebridge.ConfigFunc {
	if database.ReadOnlyPool {
		return nil
	}
	return func() (sqlitebridge.OpenOptions, error) {
		return sqlitebridge.OpenOptions{
			Flags:   sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
			Pragmas: []sqlitebridge.Pragma{{Name: "busy_timeout", Value: "5000"}},
		}, nil
	}
}

type execResult struct {
	Changes int `json:"changes"`
}

func runExec(ctx context.Context, env *environment, args []string) error {
	if len(args) != 1 {
		return usagef("exec takes exactly one SQL argument")
	}
	client, err := sqlitebridge.Open(ctx, env.writerConfig())
	if err != nil {
		return err
	}
	defer closeClient(env.logger, client)

	var changes int
	err = client.ConnMut(ctx, func(conn *sqlite.Conn) error {
		if err := sqlitex.ExecuteScript(conn, args[0], nil); err != nil {
			return err
		}
		changes = conn.Changes()
		return nil
	})
	if err != nil {
		return err
	}
	return env.emit(execResult{Changes: changes})
}

func runQuery(ctx context.Context, env *environment, args []string) error {
	if len(args) != 1 {
		return usagef("query takes exactly one SQL argument")
	}
	pool, err := sqlitebridge.OpenPool(ctx, env.readerConfig())
	if err != nil {
		return err
	}
	defer closePool(env.logger, pool)

	result, err := sqlitebridge.Query(ctx, pool, readRows(args[0]))
	if err != nil {
		return err
	}
	return env.emit(result)
}

type memberResult struct {
	Member int `json:"member"`
	resultSet
	Error string `json:"error,omitempty"`
}

type memberResults []memberResult

func runEach(ctx context.Context, env *environment, args []string) error {
	if len(args) != 1 {
		return usagef("each takes exactly one SQL argument")
	}
	pool, err := sqlitebridge.OpenPool(ctx, env.readerConfig())
	if err != nil {
		return err
	}
	defer closePool(env.logger, pool)

	results := sqlitebridge.QueryEach(ctx, pool, readRows(args[0]))
	members := make(memberResults, len(results))
	failed := 0
	for i, result := range results {
		members[i] = memberResult{Member: i, resultSet: result.Value}
		if result.Err != nil {
			members[i].Error = result.Err.Error()
			failed++
		}
	}
	if err := env.emit(members); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d connections failed", failed, len(members))
	}
	return nil
}

type kvResult struct {
	Key     string `json:"key"`
	Stored  bool   `json:"stored,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

type purgeResult struct {
	Purged int `json:"purged"`
}

// kvArity is the number of arguments each kv subcommand takes.
var kvArity = map[string]int{
	"put":   2,
	"get":   1,
	"del":   1,
	"keys":  0,
	"purge": 0,
}

func runKV(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return usagef("kv needs a subcommand: put, get, del, keys, or purge")
	}
	subcommand, rest := args[0], args[1:]
	arity, ok := kvArity[subcommand]
	if !ok {
		return usagef("unknown kv subcommand %q", subcommand)
	}
	if len(rest) != arity {
		return usagef("kv %s takes %d argument(s), got %d", subcommand, arity, len(rest))
	}

	var value any
	if subcommand == "put" {
		if err := json.Unmarshal([]byte(rest[1]), &value); err != nil {
			return usagef("kv put: value must be JSON: %v", err)
		}
	}

	compression, err := kvstore.ParseCompression(env.cfg.KV.Compression)
	if err != nil {
		return usagef("%v", err)
	}
	store, err := kvstore.Open(ctx, kvstore.Config{
		Path:            env.cfg.Database.Path,
		Readers:         env.cfg.Database.Connections,
		ReaderOptions:   readerOptions(env.cfg.Database),
		Pragmas:         configuredPragmas(env.cfg.Database),
		QueueDepth:      env.cfg.Database.QueueDepth,
		Compression:     compression,
		MinCompressSize: env.cfg.KV.MinCompressSize,
		Logger:          env.logger,
		Metrics:         env.metrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			env.logger.Warn("closing kv store failed", "error", err)
		}
	}()

	switch subcommand {
	case "put":
		if err := store.Put(ctx, rest[0], value, env.ttl); err != nil {
			return err
		}
		return env.emit(kvResult{Key: rest[0], Stored: true})

	case "get":
		found, err := store.Get(ctx, rest[0], &value)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("key %q not found", rest[0])
		}
		return env.emit(value)

	case "del":
		deleted, err := store.Delete(ctx, rest[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("key %q not found", rest[0])
		}
		return env.emit(kvResult{Key: rest[0], Deleted: true})

	case "keys":
		keys, err := store.Keys(ctx)
		if err != nil {
			return err
		}
		return env.emit(keys)

	default:
		purged, err := store.Purge(ctx)
		if err != nil {
			return err
		}
		return env.emit(purgeResult{Purged: purged})
	}
}

func closeClient(logger *slog.Logger, client sqlitebridge.Client) {
	if err := client.CloseBlocking(); err != nil {
		logger.Warn("closing writer failed", "error", err)
	}
}

func closePool(logger *slog.Logger, pool *sqlitebridge.Pool) {
	if err := pool.CloseBlocking(); err != nil {
		logger.Warn("closing reader pool failed", "error", err)
	}
}
