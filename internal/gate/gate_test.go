package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mustLock wraps a lock call: mustLock(t)(g.LockIndex(ctx)).
func mustLock(t *testing.T) func(func(), error) func() {
	return func(release func(), err error) func() {
		t.Helper()
		if err != nil {
			t.Fatalf("lock: %v", err)
		}
		return release
	}
}

func TestDocumentLockSerializesSameID(t *testing.T) {
	g := New()
	ctx := context.Background()
	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.LockDocument(ctx, 7)
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Errorf("expected at most one holder for a document, saw %d", maxActive)
	}
	if g.held() != 0 {
		t.Errorf("expected lock map to drain, %d entries left", g.held())
	}
}

func TestDifferentDocumentsRunInParallel(t *testing.T) {
	g := New()
	ctx := context.Background()
	releaseA := mustLock(t)(g.LockDocument(ctx, 1))
	done := make(chan struct{})
	go func() {
		release, err := g.LockDocument(ctx, 2)
		if err == nil {
			release()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("document 2 blocked behind document 1")
	}
	releaseA()
}

func TestLockIndexWaitsForDocumentWork(t *testing.T) {
	g := New()
	ctx := context.Background()
	release := mustLock(t)(g.LockDocument(ctx, 1))
	acquired := make(chan struct{})
	go func() {
		r, err := g.LockIndex(ctx)
		if err != nil {
			return
		}
		close(acquired)
		r()
	}()
	select {
	case <-acquired:
		t.Fatal("rebuild lock acquired while document work was active")
	case <-time.After(20 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("rebuild lock never acquired")
	}
}

func TestSharedRunsAlongsideDocumentWork(t *testing.T) {
	g := New()
	ctx := context.Background()
	release := mustLock(t)(g.LockDocument(ctx, 3))
	defer release()
	done := make(chan struct{})
	go func() {
		r, err := g.RLockIndex(ctx)
		if err == nil {
			r()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("search blocked behind document work")
	}
}

func TestCancelledWaitLeavesNoState(t *testing.T) {
	g := New()
	release := mustLock(t)(g.LockDocument(context.Background(), 5))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.LockDocument(ctx, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	release()
	if g.held() != 0 {
		t.Errorf("expected lock map to drain, %d entries left", g.held())
	}
	// The shared unit taken by the cancelled waiter must have been returned.
	rebuild := mustLock(t)(g.LockIndex(context.Background()))
	rebuild()
}
