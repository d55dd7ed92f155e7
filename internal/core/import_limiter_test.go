package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestImportLimiter_AcquireRelease(t *testing.T) {
	limiter := NewImportLimiter(2, 0, time.Second)
	ctx := context.Background()

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("initial ActiveCount = %d, want 0", got)
	}

	if err := limiter.Acquire(ctx, "acme"); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if err := limiter.Acquire(ctx, "acme"); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	status := limiter.Status()
	if status.Active != 2 || status.Available != 0 {
		t.Errorf("Status() = %+v, want 2 active, 0 available", status)
	}
	if status.ByTenant["acme"] != 2 {
		t.Errorf("ByTenant[acme] = %d, want 2", status.ByTenant["acme"])
	}

	limiter.Release("acme")
	limiter.Release("acme")

	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("after Release, ActiveCount = %d, want 0", got)
	}
	if _, ok := limiter.Status().ByTenant["acme"]; ok {
		t.Error("tenant entry should be removed when its count reaches zero")
	}
}

func TestImportLimiter_BlocksWhenFull(t *testing.T) {
	limiter := NewImportLimiter(1, 0, 100*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := limiter.Acquire(ctx, "b")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("expected ErrTooManyImports, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("timeout too fast: %v", elapsed)
	}
	if _, ok := limiter.Status().ByTenant["b"]; ok {
		t.Error("failed Acquire must not leave a tenant reservation")
	}

	limiter.Release("a")
}

func TestImportLimiter_PerTenantCap(t *testing.T) {
	limiter := NewImportLimiter(3, 1, time.Second)

	if !limiter.TryAcquire("acme") {
		t.Fatal("first TryAcquire for acme should succeed")
	}

	start := time.Now()
	err := limiter.Acquire(context.Background(), "acme")
	if !errors.Is(err, ErrTooManyImports) {
		t.Errorf("second acme Acquire = %v, want ErrTooManyImports", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("tenant cap should reject without waiting")
	}

	if !limiter.TryAcquire("globex") {
		t.Error("another tenant should still get a slot")
	}

	limiter.Release("acme")
	limiter.Release("globex")
}

func TestImportLimiter_ConcurrentAccess(t *testing.T) {
	const maxConcurrent = 3
	const totalRequests = 10

	limiter := NewImportLimiter(maxConcurrent, 0, time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := limiter.Acquire(context.Background(), "t"); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer limiter.Release("t")

			mu.Lock()
			if current := limiter.ActiveCount(); current > maxObserved {
				maxObserved = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
		}()
	}

	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("exceeded max concurrent: observed %d, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.ActiveCount(); got != 0 {
		t.Errorf("final ActiveCount = %d, want 0", got)
	}
}

func TestImportLimiter_ContextCancellation(t *testing.T) {
	limiter := NewImportLimiter(1, 0, 5*time.Second)

	if err := limiter.Acquire(context.Background(), "t"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- limiter.Acquire(cancelCtx, "t")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after context cancellation")
	}

	limiter.Release("t")
}

func TestImportLimiter_WaitForDrain(t *testing.T) {
	limiter := NewImportLimiter(2, 0, time.Second)
	ctx := context.Background()

	_ = limiter.Acquire(ctx, "t")
	_ = limiter.Acquire(ctx, "t")

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- limiter.WaitForDrain(context.Background())
	}()

	select {
	case <-drainDone:
		t.Error("WaitForDrain returned too early")
	case <-time.After(50 * time.Millisecond):
	}

	limiter.Release("t")
	limiter.Release("t")

	select {
	case err := <-drainDone:
		if err != nil {
			t.Errorf("WaitForDrain returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("WaitForDrain did not complete after all released")
	}
}

func TestImportLimiter_WaitForDrain_ContextCancelled(t *testing.T) {
	limiter := NewImportLimiter(1, 0, time.Second)
	_ = limiter.Acquire(context.Background(), "t")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := limiter.WaitForDrain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}

	limiter.Release("t")
}

func TestImportLimiter_DefaultValues(t *testing.T) {
	limiter := NewImportLimiter(0, -1, 0)

	status := limiter.Status()
	if status.MaxConcurrent != DefaultMaxConcurrentImports {
		t.Errorf("MaxConcurrent = %d, want %d", status.MaxConcurrent, DefaultMaxConcurrentImports)
	}
	if status.MaxPerTenant != 0 {
		t.Errorf("MaxPerTenant = %d, want 0", status.MaxPerTenant)
	}
}

func TestImportLimiter_UnblocksWaiter(t *testing.T) {
	limiter := NewImportLimiter(1, 0, time.Second)
	ctx := context.Background()

	if err := limiter.Acquire(ctx, "a"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := limiter.Acquire(ctx, "b"); err != nil {
			t.Errorf("waiting Acquire failed: %v", err)
			return
		}
		close(acquired)
		limiter.Release("b")
	}()

	time.Sleep(50 * time.Millisecond)
	limiter.Release("a")

	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Error("waiter did not acquire after release")
	}
}
