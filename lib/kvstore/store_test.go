// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/sqlbridge/lib/clock"
	"github.com/bureau-foundation/sqlbridge/lib/sqlitebridge"
	"github.com/bureau-foundation/sqlbridge/lib/testutil"
)

type session struct {
	User   string   `cbor:"user"`
	Scopes []string `cbor:"scopes"`
	Hits   int      `cbor:"hits"`
}

func openTestStore(t *testing.T, modify func(*Config)) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cfg := Config{
		Path:        testutil.DatabasePath(t, "kv"),
		Readers:     2,
		Compression: CompressionZstd,
		Clock:       fake,
	}
	if modify != nil {
		modify(&cfg)
	}
	store, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return store, fake
}

// storedCompression reads the compression tag written for key.
func storedCompression(t *testing.T, store *Store, key string) Compression {
	t.Helper()
	tag, err := sqlitebridge.QueryBlocking(store.Writer(), func(conn *sqlite.Conn) (int64, error) {
		var tag int64 = -1
		err := sqlitex.Execute(conn, "SELECT compression FROM kv WHERE key = ?", &sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tag = stmt.ColumnInt64(0)
				return nil
			},
		})
		return tag, err
	})
	if err != nil {
		t.Fatalf("reading compression for %q: %v", key, err)
	}
	return Compression(tag)
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	want := session{User: "alice", Scopes: []string{"read", "write"}, Hits: 3}
	if err := store.Put(ctx, "session/alice", want, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var got session
	found, err := store.Get(ctx, "session/alice", &got)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("Get reported missing key")
	}
	if got.User != want.User || got.Hits != want.Hits || len(got.Scopes) != 2 {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := openTestStore(t, nil)

	var value string
	found, err := store.Get(context.Background(), "nope", &value)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("Get found a key that was never written")
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	for _, value := range []string{"first", "second"} {
		if err := store.Put(ctx, "k", value, 0); err != nil {
			t.Fatalf("Put(%q): %v", value, err)
		}
	}
	var got string
	if _, err := store.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "second" {
		t.Errorf("Get = %q, want %q", got, "second")
	}
}

func TestPutEmptyKey(t *testing.T) {
	store, _ := openTestStore(t, nil)
	if err := store.Put(context.Background(), "", 1, 0); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestExpiry(t *testing.T) {
	ctx := context.Background()
	store, fake := openTestStore(t, nil)

	if err := store.Put(ctx, "short", "lived", time.Minute); err != nil {
		t.Fatalf("Put short: %v", err)
	}
	if err := store.Put(ctx, "forever", "lived", 0); err != nil {
		t.Fatalf("Put forever: %v", err)
	}

	var value string
	if found, err := store.Get(ctx, "short", &value); err != nil || !found {
		t.Fatalf("Get before expiry = (%v, %v), want found", found, err)
	}

	fake.Advance(2 * time.Minute)

	if found, err := store.Get(ctx, "short", &value); err != nil || found {
		t.Fatalf("Get after expiry = (%v, %v), want not found", found, err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "forever" {
		t.Errorf("Keys = %v, want [forever]", keys)
	}

	removed, err := store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("Purge removed %d, want 1", removed)
	}
	removed, err = store.Purge(ctx)
	if err != nil {
		t.Fatalf("second Purge: %v", err)
	}
	if removed != 0 {
		t.Errorf("second Purge removed %d, want 0", removed)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	if err := store.Put(ctx, "gone", 42, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	deleted, err := store.Delete(ctx, "gone")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("Delete reported the key as missing")
	}
	deleted, err = store.Delete(ctx, "gone")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Error("second Delete reported the key as present")
	}
}

func TestKeysSorted(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	for _, key := range []string{"b", "c", "a"} {
		if err := store.Put(ctx, key, key, 0); err != nil {
			t.Fatalf("Put(%q): %v", key, err)
		}
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("Keys = %v, want [a b c]", keys)
	}
}

func TestCompressionSelection(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, func(cfg *Config) { cfg.MinCompressSize = 64 })

	repetitive := bytes.Repeat([]byte("sqlbridge "), 200)
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}

	tests := []struct {
		key   string
		value []byte
		want  Compression
	}{
		{"small", []byte("tiny"), CompressionNone},
		{"repetitive", repetitive, CompressionZstd},
		{"random", random, CompressionNone},
	}
	for _, test := range tests {
		if err := store.Put(ctx, test.key, test.value, 0); err != nil {
			t.Fatalf("Put(%q): %v", test.key, err)
		}
		if got := storedCompression(t, store, test.key); got != test.want {
			t.Errorf("%s stored with %s, want %s", test.key, got, test.want)
		}

		var roundTrip []byte
		if _, err := store.Get(ctx, test.key, &roundTrip); err != nil {
			t.Fatalf("Get(%q): %v", test.key, err)
		}
		if !bytes.Equal(roundTrip, test.value) {
			t.Errorf("%s did not survive the round trip", test.key)
		}
	}
}

func TestLZ4Store(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, func(cfg *Config) { cfg.Compression = CompressionLZ4 })

	value := bytes.Repeat([]byte("abcd"), 1024)
	if err := store.Put(ctx, "lz4", value, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := storedCompression(t, store, "lz4"); got != CompressionLZ4 {
		t.Errorf("stored with %s, want lz4", got)
	}
	var got []byte
	if _, err := store.Get(ctx, "lz4", &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Error("lz4 value did not survive the round trip")
	}
}

func TestCorruptChecksum(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	if err := store.Put(ctx, "victim", "payload", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := store.Writer().ConnMutBlocking(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "UPDATE kv SET checksum = zeroblob(32) WHERE key = 'victim'", nil)
	})
	if err != nil {
		t.Fatalf("corrupting checksum: %v", err)
	}

	var value string
	_, err = store.Get(ctx, "victim", &value)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get = %v, want ErrCorrupt", err)
	}
}

func TestCorruptSize(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t, nil)

	if err := store.Put(ctx, "victim", "payload", 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	err := store.Writer().ConnMutBlocking(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "UPDATE kv SET size = size + 1 WHERE key = 'victim'", nil)
	})
	if err != nil {
		t.Fatalf("corrupting size: %v", err)
	}

	var value string
	if _, err := store.Get(ctx, "victim", &value); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Get = %v, want ErrCorrupt", err)
	}
}

func TestCorruptNegativeSize(t *testing.T) {
	ctx := context.Background()
	value := bytes.Repeat([]byte("abcd"), 1024)

	for _, algorithm := range []Compression{CompressionLZ4, CompressionZstd} {
		for _, size := range []int64{-1, MaxValueSize + 1} {
			store, _ := openTestStore(t, func(cfg *Config) { cfg.Compression = algorithm })
			if err := store.Put(ctx, "victim", value, 0); err != nil {
				t.Fatalf("%s: Put: %v", algorithm, err)
			}
			if got := storedCompression(t, store, "victim"); got != algorithm {
				t.Fatalf("%s: stored with %s", algorithm, got)
			}
			err := store.Writer().ConnMutBlocking(func(conn *sqlite.Conn) error {
				return sqlitex.Execute(conn, "UPDATE kv SET size = ? WHERE key = 'victim'", &sqlitex.ExecOptions{
					Args: []any{size},
				})
			})
			if err != nil {
				t.Fatalf("%s: setting size %d: %v", algorithm, size, err)
			}

			var got []byte
			if _, err := store.Get(ctx, "victim", &got); !errors.Is(err, ErrCorrupt) {
				t.Errorf("%s: Get with size %d = %v, want ErrCorrupt", algorithm, size, err)
			}
		}
	}
}

func TestReadersAreReadOnly(t *testing.T) {
	store, _ := openTestStore(t, nil)

	errs := store.Readers().ConnForEachBlocking(func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM kv", nil)
	})
	for i, err := range errs {
		if err == nil {
			t.Errorf("reader %d accepted a write", i)
		}
	}
}

func TestOpenRejectsMemory(t *testing.T) {
	for _, path := range []string{"", sqlitebridge.MemoryPath} {
		if _, err := Open(context.Background(), Config{Path: path}); err == nil {
			t.Errorf("Open(%q) succeeded, want error", path)
		}
	}
}

func TestOpenRejectsBadPragma(t *testing.T) {
	_, err := Open(context.Background(), Config{
		Path:    testutil.DatabasePath(t, "kv"),
		Pragmas: []sqlitebridge.Pragma{{Name: "journal_mode", Value: "not_a_mode"}},
	})
	if err == nil {
		t.Fatal("expected error for a pragma that does not take effect")
	}
}

func TestCloseThenUse(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Config{Path: testutil.DatabasePath(t, "kv"), Readers: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := store.Put(ctx, "k", "v", 0); !errors.Is(err, sqlitebridge.ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
	var value string
	if _, err := store.Get(ctx, "k", &value); !errors.Is(err, sqlitebridge.ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
}
