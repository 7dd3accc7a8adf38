// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitebridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"zombiezen.com/go/sqlite"
)

// Pool is a fixed set of Clients opened against the same database.
// Calls are spread across members round robin; there is no affinity
// and no load awareness, so a slow member is not avoided.
//
// Pool is safe for concurrent use. Each member is an independent FIFO
// stream; no ordering holds across members.
type Pool struct {
	clients []Client
	counter atomic.Uint64
}

// OpenPool opens every member concurrently. Opening is all-or-nothing:
// if any member fails, the members that did open are closed and the
// error of the lowest-indexed failing member is returned.
func OpenPool(ctx context.Context, cfg PoolConfig) (*Pool, error) {
	size, err := cfg.size()
	if err != nil {
		return nil, err
	}
	member := cfg.member()

	clients := make([]Client, size)
	errs := make([]error, size)
	var waitGroup sync.WaitGroup
	for index := range size {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			clients[index], errs[index] = Open(ctx, member)
		}()
	}
	waitGroup.Wait()

	return assemblePool(member, clients, errs)
}

// OpenPoolBlocking opens the members one after another, stopping at
// the first failure.
func OpenPoolBlocking(cfg PoolConfig) (*Pool, error) {
	size, err := cfg.size()
	if err != nil {
		return nil, err
	}
	member := cfg.member()

	clients := make([]Client, size)
	errs := make([]error, size)
	for index := range size {
		clients[index], errs[index] = OpenBlocking(member)
		if errs[index] != nil {
			break
		}
	}

	return assemblePool(member, clients, errs)
}

func assemblePool(member ClientConfig, clients []Client, errs []error) (*Pool, error) {
	for index, err := range errs {
		if err == nil {
			continue
		}
		for _, client := range clients {
			if closeErr := client.CloseBlocking(); closeErr != nil {
				member.Logger.Warn("closing pool member after failed open", "path", member.Path, "error", closeErr)
			}
		}
		return nil, fmt.Errorf("sqlitebridge: pool member %d: %w", index, err)
	}

	member.Logger.Info("sqlite pool opened", "path", member.Path, "pool_size", len(clients))
	return &Pool{clients: clients}, nil
}

// Size returns the number of members. It never changes.
func (p *Pool) Size() int {
	return len(p.clients)
}

// next selects the member for one call. The counter may wrap; only
// its value modulo the pool size matters.
func (p *Pool) next() Client {
	n := p.counter.Add(1) - 1
	return p.clients[n%uint64(len(p.clients))]
}

// Conn runs fn on the next member. See Client.Conn.
func (p *Pool) Conn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.next().Conn(ctx, fn)
}

// ConnMut runs fn on the next member. See Client.ConnMut.
func (p *Pool) ConnMut(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	return p.next().ConnMut(ctx, fn)
}

// ConnBlocking runs fn on the next member, blocking until it
// completes.
func (p *Pool) ConnBlocking(fn func(conn *sqlite.Conn) error) error {
	return p.next().ConnBlocking(fn)
}

// ConnMutBlocking is the blocking form of ConnMut.
func (p *Pool) ConnMutBlocking(fn func(conn *sqlite.Conn) error) error {
	return p.next().ConnMutBlocking(fn)
}

// ConnForEach runs fn once on every member concurrently and returns
// one error per member, in member order. A failing member does not
// stop the others. fn may be called from several goroutines at once,
// each time with a different connection.
func (p *Pool) ConnForEach(ctx context.Context, fn func(conn *sqlite.Conn) error) []error {
	errs := make([]error, len(p.clients))
	p.each(true, func(index int, client Client) {
		errs[index] = client.Conn(ctx, fn)
	})
	return errs
}

// ConnForEachBlocking runs fn on every member in turn and returns one
// error per member, in member order.
func (p *Pool) ConnForEachBlocking(fn func(conn *sqlite.Conn) error) []error {
	errs := make([]error, len(p.clients))
	p.each(false, func(index int, client Client) {
		errs[index] = client.ConnBlocking(fn)
	})
	return errs
}

// Close closes the members in order. The first failure is returned
// immediately and the remaining members are left open, so a caller
// that sees an error should expect some members to still hold
// connections. Closing an already closed pool returns nil.
func (p *Pool) Close(ctx context.Context) error {
	for index, client := range p.clients {
		if err := client.Close(ctx); err != nil {
			return fmt.Errorf("sqlitebridge: closing pool member %d: %w", index, err)
		}
	}
	return nil
}

// CloseBlocking is Close without a context.
func (p *Pool) CloseBlocking() error {
	return p.Close(context.Background())
}

// each calls fn for every member, concurrently or in order, and
// returns once all calls have finished.
func (p *Pool) each(concurrent bool, fn func(index int, client Client)) {
	if !concurrent {
		for index, client := range p.clients {
			fn(index, client)
		}
		return
	}

	var waitGroup sync.WaitGroup
	for index, client := range p.clients {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			fn(index, client)
		}()
	}
	waitGroup.Wait()
}
