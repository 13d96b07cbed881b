// Package gate is the in-process index lock used by the memory and SQLite
// stores. A full rebuild excludes everything else; per-document indexing and
// removal serialize only with other work on the same document; searches run
// alongside per-document work. Waiting honours context cancellation.
package gate

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// exclusiveWeight is the weight a rebuild acquires; every shared holder
// takes one unit.
const exclusiveWeight = 1 << 30

type Gate struct {
	global *semaphore.Weighted

	mu   sync.Mutex
	docs map[int64]*docLock
}

type docLock struct {
	sem  *semaphore.Weighted
	refs int
}

func New() *Gate {
	return &Gate{
		global: semaphore.NewWeighted(exclusiveWeight),
		docs:   make(map[int64]*docLock),
	}
}

// LockIndex blocks until no other holder is active. Used for full rebuilds.
// A waiting rebuild keeps new holders out, so it cannot be starved.
func (g *Gate) LockIndex(ctx context.Context) (func(), error) {
	if err := g.global.Acquire(ctx, exclusiveWeight); err != nil {
		return nil, err
	}
	return func() { g.global.Release(exclusiveWeight) }, nil
}

// RLockIndex is held by searches.
func (g *Gate) RLockIndex(ctx context.Context) (func(), error) {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { g.global.Release(1) }, nil
}

// LockDocument takes the shared side plus the lock for id, so two operations
// on the same document never interleave while different documents proceed in
// parallel.
func (g *Gate) LockDocument(ctx context.Context, id int64) (func(), error) {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	g.mu.Lock()
	l, ok := g.docs[id]
	if !ok {
		l = &docLock{sem: semaphore.NewWeighted(1)}
		g.docs[id] = l
	}
	l.refs++
	g.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		g.unref(id, l)
		g.global.Release(1)
		return nil, err
	}
	return func() {
		l.sem.Release(1)
		g.unref(id, l)
		g.global.Release(1)
	}, nil
}

func (g *Gate) unref(id int64, l *docLock) {
	g.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(g.docs, id)
	}
	g.mu.Unlock()
}

// held reports how many document locks are currently tracked.
func (g *Gate) held() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.docs)
}
