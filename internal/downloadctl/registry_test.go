package downloadctl

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnsureThenFlags(t *testing.T) {
	r := New()
	r.Ensure("k")
	if r.IsPaused("k") || r.IsCancelled("k") {
		t.Fatal("fresh control should be neither paused nor cancelled")
	}
}

func TestUnknownKeyFlagsAreFalse(t *testing.T) {
	r := New()
	if r.IsPaused("missing") || r.IsCancelled("missing") {
		t.Fatal("unknown key should report false for both flags")
	}
}

func TestSetPausedAndCancel(t *testing.T) {
	r := New()
	r.SetPaused("k", true)
	if !r.IsPaused("k") {
		t.Fatal("expected paused")
	}
	r.RequestCancel("k")
	if !r.IsCancelled("k") {
		t.Fatal("expected cancelled")
	}
}

func TestWaitWhilePausedReturnsWhenUnpaused(t *testing.T) {
	r := New()
	r.SetPaused("k", true)

	done := make(chan struct{})
	go func() {
		r.WaitWhilePausedOrUntilCancel(context.Background(), "k")
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before unpause")
	case <-time.After(30 * time.Millisecond):
	}

	r.SetPaused("k", false)

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("wait did not return after unpause")
	}
}

func TestWaitWhilePausedReturnsOnCancel(t *testing.T) {
	r := New()
	r.SetPaused("k", true)

	done := make(chan struct{})
	go func() {
		r.WaitWhilePausedOrUntilCancel(context.Background(), "k")
		close(done)
	}()

	r.RequestCancel("k")

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("wait did not return after cancel")
	}
}

func TestWaitWhilePausedReturnsOnContextDone(t *testing.T) {
	r := New()
	r.SetPaused("k", true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.WaitWhilePausedOrUntilCancel(ctx, "k")
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("wait did not return after context cancellation")
	}
}

func TestClearRemovesControl(t *testing.T) {
	r := New()
	r.SetPaused("k", true)
	r.Clear("k")
	if r.IsPaused("k") {
		t.Fatal("cleared key should report unpaused")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := "k"
			r.SetPaused(key, i%2 == 0)
			r.IsPaused(key)
			r.IsCancelled(key)
		}(i)
	}
	wg.Wait()
}
