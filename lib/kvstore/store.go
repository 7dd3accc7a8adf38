// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeebo/blake3"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sqlbridge/lib/clock"
	"github.com/bureau-foundation/sqlbridge/lib/codec"
	"github.com/bureau-foundation/sqlbridge/lib/sqlitebridge"
)

// ErrCorrupt is returned by Get when a stored value fails its size or
// checksum verification.
var ErrCorrupt = errors.New("kvstore: stored value is corrupt")

// DefaultMinCompressSize is used when Config.MinCompressSize is zero.
const DefaultMinCompressSize = 256

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key         TEXT PRIMARY KEY,
	value       BLOB NOT NULL,
	compression INTEGER NOT NULL,
	size        INTEGER NOT NULL,
	checksum    BLOB NOT NULL,
	updated_at  INTEGER NOT NULL,
	expires_at  INTEGER
);
CREATE INDEX IF NOT EXISTS kv_expires_at ON kv (expires_at) WHERE expires_at IS NOT NULL;
`

// Config holds the parameters for Open.
type Config struct {
	// Path is the database file. Required; in-memory databases are
	// private to one connection and cannot be shared with readers.
	Path string

	// Readers is the reader pool size. Zero means one per CPU.
	Readers int

	// ReaderOptions configures reader connections. Nil means
	// read-only connections.
	ReaderOptions sqlitebridge.ConfigFunc

	// Pragmas are applied to the writer after the standard set.
	Pragmas []sqlitebridge.Pragma

	// QueueDepth bounds each worker's queue; see
	// sqlitebridge.ClientConfig.
	QueueDepth int

	// Compression is applied to encoded values of at least
	// MinCompressSize bytes. Values that do not shrink are stored
	// uncompressed.
	Compression     Compression
	MinCompressSize int

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics sqlitebridge.Collector
}

// Store is a key-value store on one SQLite database. Writes go through
// a single writer client; reads are spread across a pool of readers.
// Values are CBOR encoded, optionally compressed, and checksummed
// with BLAKE3.
type Store struct {
	writer          sqlitebridge.Client
	readers         *sqlitebridge.Pool
	compression     Compression
	minCompressSize int
	clock           clock.Clock
	logger          *slog.Logger
}

// Open opens (creating if necessary) the store at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" || cfg.Path == sqlitebridge.MemoryPath {
		return nil, errors.New("kvstore: Path must name a database file")
	}
	if cfg.MinCompressSize == 0 {
		cfg.MinCompressSize = DefaultMinCompressSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	writer, err := sqlitebridge.Open(ctx, sqlitebridge.ClientConfig{
		Path:       cfg.Path,
		Configure:  writerOptions(cfg.Pragmas),
		QueueDepth: cfg.QueueDepth,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
		Clock:      cfg.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening writer: %w", err)
	}

	err = writer.ConnMut(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, schema, nil)
	})
	if err != nil {
		writer.CloseBlocking()
		return nil, fmt.Errorf("kvstore: creating schema: %w", err)
	}

	readers, err := sqlitebridge.OpenPool(ctx, sqlitebridge.PoolConfig{
		Path:       cfg.Path,
		Configure:  cfg.ReaderOptions,
		NumConns:   cfg.Readers,
		QueueDepth: cfg.QueueDepth,
		Logger:     cfg.Logger,
		Metrics:    cfg.Metrics,
		Clock:      cfg.Clock,
	})
	if err != nil {
		writer.CloseBlocking()
		return nil, fmt.Errorf("kvstore: opening readers: %w", err)
	}

	return &Store{
		writer:          writer,
		readers:         readers,
		compression:     cfg.Compression,
		minCompressSize: cfg.MinCompressSize,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
	}, nil
}

func writerOptions(extra []sqlitebridge.Pragma) sqlitebridge.ConfigFunc {
	return func() (sqlitebridge.OpenOptions, error) {
		options, err := sqlitebridge.StandardOptions()
		if err != nil {
			return options, err
		}
		options.Pragmas = append(options.Pragmas, extra...)
		return options, nil
	}
}

// Put stores value under key, replacing any existing value. A positive
// ttl makes the entry expire ttl from now; zero or negative means it
// never expires.
func (s *Store) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return errors.New("kvstore: empty key")
	}
	encoded, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("kvstore: put %q: %w", key, err)
	}
	if len(encoded) > MaxValueSize {
		return fmt.Errorf("kvstore: put %q: encoded value is %d bytes, limit is %d", key, len(encoded), MaxValueSize)
	}
	payload, algorithm, err := s.compress(encoded)
	if err != nil {
		return fmt.Errorf("kvstore: put %q: %w", key, err)
	}
	checksum := blake3.Sum256(encoded)

	now := s.clock.Now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).UnixNano()
	}

	return s.writer.ConnMut(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO kv (key, value, compression, size, checksum, updated_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				value = excluded.value,
				compression = excluded.compression,
				size = excluded.size,
				checksum = excluded.checksum,
				updated_at = excluded.updated_at,
				expires_at = excluded.expires_at`,
			&sqlitex.ExecOptions{
				Args: []any{key, payload, int64(algorithm), int64(len(encoded)), checksum[:], now.UnixNano(), expiresAt},
			})
	})
}

func (s *Store) compress(encoded []byte) ([]byte, Compression, error) {
	if s.compression == CompressionNone || len(encoded) < s.minCompressSize {
		return encoded, CompressionNone, nil
	}
	compressed, err := compress(encoded, s.compression)
	if errors.Is(err, errIncompressible) {
		return encoded, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, s.compression, nil
}

type storedValue struct {
	payload     []byte
	compression Compression
	size        int
	checksum    []byte
}

// Get decodes the value stored under key into out. It reports false,
// with no error, when the key is missing or expired.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	now := s.clock.Now().UnixNano()
	stored, err := sqlitebridge.Query(ctx, s.readers, func(conn *sqlite.Conn) (*storedValue, error) {
		var stored *storedValue
		err := sqlitex.Execute(conn, `
			SELECT value, compression, size, checksum FROM kv
			WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
			&sqlitex.ExecOptions{
				Args: []any{key, now},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					stored = &storedValue{
						payload:     columnBytes(stmt, 0),
						compression: Compression(stmt.ColumnInt64(1)),
						size:        int(stmt.ColumnInt64(2)),
						checksum:    columnBytes(stmt, 3),
					}
					return nil
				},
			})
		return stored, err
	})
	if err != nil {
		return false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	if stored == nil {
		return false, nil
	}

	encoded, err := decompress(stored.payload, stored.compression, stored.size)
	if err != nil {
		return false, fmt.Errorf("%w: key %q: %v", ErrCorrupt, key, err)
	}
	checksum := blake3.Sum256(encoded)
	if !bytes.Equal(checksum[:], stored.checksum) {
		return false, fmt.Errorf("%w: key %q: checksum mismatch", ErrCorrupt, key)
	}
	if err := codec.Unmarshal(encoded, out); err != nil {
		return false, fmt.Errorf("kvstore: get %q: %w", key, err)
	}
	return true, nil
}

func columnBytes(stmt *sqlite.Stmt, column int) []byte {
	buffer := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, buffer)
	return buffer
}

// Delete removes key and reports whether it existed. Expired entries
// that have not been purged count as existing.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	var deleted bool
	err := s.writer.ConnMut(ctx, func(conn *sqlite.Conn) error {
		err := sqlitex.Execute(conn, "DELETE FROM kv WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
		})
		if err != nil {
			return err
		}
		deleted = conn.Changes() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("kvstore: delete %q: %w", key, err)
	}
	return deleted, nil
}

// Purge deletes every expired entry and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int, error) {
	now := s.clock.Now().UnixNano()
	removed, err := sqlitebridge.Query(ctx, s.writer, func(conn *sqlite.Conn) (int, error) {
		err := sqlitex.Execute(conn, "DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at <= ?", &sqlitex.ExecOptions{
			Args: []any{now},
		})
		return conn.Changes(), err
	})
	if err != nil {
		return 0, fmt.Errorf("kvstore: purge: %w", err)
	}
	if removed > 0 {
		s.logger.Debug("purged expired keys", "count", removed)
	}
	return removed, nil
}

// Keys returns every live key in ascending order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	now := s.clock.Now().UnixNano()
	keys, err := sqlitebridge.Query(ctx, s.readers, func(conn *sqlite.Conn) ([]string, error) {
		var keys []string
		err := sqlitex.Execute(conn, `
			SELECT key FROM kv
			WHERE expires_at IS NULL OR expires_at > ?
			ORDER BY key`,
			&sqlitex.ExecOptions{
				Args: []any{now},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					keys = append(keys, stmt.ColumnText(0))
					return nil
				},
			})
		return keys, err
	})
	if err != nil {
		return nil, fmt.Errorf("kvstore: keys: %w", err)
	}
	return keys, nil
}

// Writer returns the client that serializes all writes.
func (s *Store) Writer() sqlitebridge.Client {
	return s.writer
}

// Readers returns the reader pool.
func (s *Store) Readers() *sqlitebridge.Pool {
	return s.readers
}

// Close closes the readers and then the writer. Both are attempted
// even if the first fails.
func (s *Store) Close(ctx context.Context) error {
	return errors.Join(s.readers.Close(ctx), s.writer.Close(ctx))
}
