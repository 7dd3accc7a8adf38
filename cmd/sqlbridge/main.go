// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/sqlbridge/lib/bridgemetrics"
	"github.com/bureau-foundation/sqlbridge/lib/config"
	"github.com/bureau-foundation/sqlbridge/lib/version"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	dbPath     string
	conns      int
	format     string
	metrics    bool
	ttl        time.Duration
	version    bool
	help       bool
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts options
	flagSet := pflag.NewFlagSet("sqlbridge", pflag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&opts.configPath, "config", "", "configuration file (default: $SQLBRIDGE_CONFIG)")
	flagSet.StringVar(&opts.dbPath, "db", "", "database path, overriding database.path")
	flagSet.IntVar(&opts.conns, "conns", 0, "reader pool size, overriding database.connections (0: one per CPU)")
	flagSet.StringVar(&opts.format, "format", "", "output format: text, json, or cbor (default: text on a terminal, json otherwise)")
	flagSet.BoolVar(&opts.metrics, "metrics", false, "write Prometheus metrics to stderr on exit")
	flagSet.DurationVar(&opts.ttl, "ttl", 0, "time to live for kv put (0: never expires)")
	flagSet.BoolVar(&opts.version, "version", false, "print version information and exit")
	flagSet.BoolVarP(&opts.help, "help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		printHelp(stderr, flagSet)
		return exitUsage
	}
	if opts.version {
		version.Print(stdout, "sqlbridge")
		return exitOK
	}
	if opts.help {
		printHelp(stdout, flagSet)
		return exitOK
	}
	if flagSet.NArg() == 0 {
		printHelp(stderr, flagSet)
		return exitUsage
	}

	format, err := resolveFormat(opts.format, stdout)
	if err != nil {
		return exitCode(stderr, err)
	}
	cfg, err := loadConfig(opts, flagSet)
	if err != nil {
		return exitCode(stderr, err)
	}
	logger, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		return exitCode(stderr, usagef("%v", err))
	}

	env := &environment{
		cfg:    cfg,
		logger: logger,
		stdout: stdout,
		format: format,
		ttl:    opts.ttl,
	}

	var registry *prometheus.Registry
	if opts.metrics {
		registry = prometheus.NewRegistry()
		collector, err := bridgemetrics.NewPrometheusCollector(registry)
		if err != nil {
			return exitCode(stderr, err)
		}
		env.metrics = collector
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = dispatch(ctx, env, flagSet.Args())

	if registry != nil {
		families, gatherErr := registry.Gather()
		if gatherErr == nil {
			gatherErr = writeMetrics(stderr, families)
		}
		if gatherErr != nil {
			logger.Warn("writing metrics failed", "error", gatherErr)
		}
	}
	return exitCode(stderr, err)
}

// usageError is an invalid invocation: bad flags, arguments, or
// configuration. It exits with status 2.
type usageError struct {
	err error
}

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }
func (e *usageError) ExitCode() int { return exitUsage }

// exitCode reports err on stderr and maps it to a process status.
func exitCode(stderr io.Writer, err error) int {
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return exitError
}

func resolveFormat(format string, stdout io.Writer) (string, error) {
	switch format {
	case "":
		if isTerminal(stdout) {
			return "text", nil
		}
		return "json", nil
	case "text", "json", "cbor":
		return format, nil
	default:
		return "", usagef("--format must be text, json, or cbor, got %q", format)
	}
}

// loadConfig reads --config, then $SQLBRIDGE_CONFIG, then falls back
// to the built-in defaults, and applies flag overrides on top.
func loadConfig(opts options, flagSet *pflag.FlagSet) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default().Resolved()
	}
	if err != nil {
		return nil, usagef("%v", err)
	}

	if flagSet.Changed("db") {
		cfg.Database.Path = opts.dbPath
	}
	if flagSet.Changed("conns") {
		cfg.Database.Connections = opts.conns
	}
	if err := cfg.Validate(); err != nil {
		return nil, usagef("invalid configuration: %v", err)
	}
	return cfg, nil
}

// newLogger writes to stderr: text when logging.format is text, or is
// auto and stderr is a terminal; JSON otherwise.
func newLogger(logging config.LoggingConfig, stderr io.Writer) (*slog.Logger, error) {
	level, err := logging.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if logging.Format == "text" || (logging.Format == "auto" && isTerminal(stderr)) {
		handler = slog.NewTextHandler(stderr, options)
	} else {
		handler = slog.NewJSONHandler(stderr, options)
	}
	return slog.New(handler).With("command", "sqlbridge"), nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `sqlbridge runs SQL against a SQLite database through serialized
connection workers.

Usage:
  sqlbridge [flags] <command> [arguments]

Commands:
  exec <sql>              run a script on the writer connection
  query <sql>             run one statement on a reader
  each <sql>              run one statement on every reader
  kv put <key> <json>     store a JSON value (see --ttl)
  kv get <key>            print a stored value
  kv del <key>            delete a key
  kv keys                 list live keys
  kv purge                remove expired keys

Flags:
%s
Exit status is 0 on success, 1 when the operation fails, and 2 for
invalid usage or configuration.
`, flagSet.FlagUsages())
}
