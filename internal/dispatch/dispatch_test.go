package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoReturnsResult(t *testing.T) {
	f := Go(nil, func() (int, error) { return 42, nil })
	v, err := f.Await(context.Background())
	if err != nil || v != 42 {
		t.Fatalf("Await = %d, %v", v, err)
	}
}

func TestGoPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Go(NewPool(1), func() (string, error) { return "", boom }).Result()
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	_, err := Go(NewPool(1), func() (int, error) { panic("kaboom") }).Result()
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v", err)
	}
}

func TestCancelledAwaitAbandonsButWorkCompletes(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	f := Go(NewPool(1), func() (int, error) {
		<-release
		finished.Store(true)
		return 1, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Await on cancelled ctx = %v", err)
	}
	close(release)
	if v, err := f.Result(); err != nil || v != 1 {
		t.Fatalf("Result = %d, %v", v, err)
	}
	if !finished.Load() {
		t.Fatalf("work did not complete")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)
	var running, peak atomic.Int32
	futures := make([]*Future[struct{}], 8)
	for i := range futures {
		futures[i] = Go(p, func() (struct{}, error) {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return struct{}{}, nil
		})
	}
	for _, f := range futures {
		if _, err := f.Result(); err != nil {
			t.Fatalf("Result: %v", err)
		}
	}
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds pool size", peak.Load())
	}
}

func TestReady(t *testing.T) {
	v, err := Ready("x", nil).Await(context.Background())
	if err != nil || v != "x" {
		t.Fatalf("Ready = %q, %v", v, err)
	}
}
