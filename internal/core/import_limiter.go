package core

// import_limiter.go bounds how many import jobs run at once.
//
// A channel semaphore caps the total across tenants so the store is never
// flooded; an optional per-tenant cap keeps one tenant from taking every
// slot. When all slots are taken a request waits up to maxWait, then fails
// with ErrTooManyImports.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConcurrentImports is the default limit for parallel jobs.
const DefaultMaxConcurrentImports = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// ImportLimiter controls concurrent job execution.
type ImportLimiter struct {
	semaphore    chan struct{}
	maxWait      time.Duration
	maxPerTenant int

	mu       sync.Mutex
	active   int
	byTenant map[string]int
}

// NewImportLimiter allows at most maxConcurrent jobs overall and
// maxPerTenant per tenant (0 disables the tenant cap).
func NewImportLimiter(maxConcurrent, maxPerTenant int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	if maxPerTenant < 0 || maxPerTenant > maxConcurrent {
		maxPerTenant = 0
	}

	return &ImportLimiter{
		semaphore:    make(chan struct{}, maxConcurrent),
		maxWait:      maxWait,
		maxPerTenant: maxPerTenant,
		byTenant:     make(map[string]int),
	}
}

// Acquire takes a slot for tenant, waiting up to maxWait.
// The caller must call Release with the same tenant when the job ends.
func (l *ImportLimiter) Acquire(ctx context.Context, tenant string) error {
	if !l.reserveTenant(tenant) {
		return ErrTooManyImports
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		l.releaseTenant(tenant)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// TryAcquire takes a slot without blocking.
func (l *ImportLimiter) TryAcquire(tenant string) bool {
	if !l.reserveTenant(tenant) {
		return false
	}
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		l.releaseTenant(tenant)
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ImportLimiter) Release(tenant string) {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	l.releaseTenant(tenant)

	<-l.semaphore
}

func (l *ImportLimiter) reserveTenant(tenant string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.maxPerTenant > 0 && l.byTenant[tenant] >= l.maxPerTenant {
		return false
	}
	l.byTenant[tenant]++
	return true
}

func (l *ImportLimiter) releaseTenant(tenant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.byTenant[tenant] <= 1 {
		delete(l.byTenant, tenant)
		return
	}
	l.byTenant[tenant]--
}

// ActiveCount returns the number of running jobs.
func (l *ImportLimiter) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// WaitForDrain blocks until no job is running or ctx ends.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// LimiterStatus is a point-in-time view of the limiter.
type LimiterStatus struct {
	Active        int            `json:"active"`
	Available     int            `json:"available"`
	MaxConcurrent int            `json:"maxConcurrent"`
	MaxPerTenant  int            `json:"maxPerTenant,omitempty"`
	ByTenant      map[string]int `json:"byTenant,omitempty"`
}

// Status returns the current limiter state.
func (l *ImportLimiter) Status() LimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	byTenant := make(map[string]int, len(l.byTenant))
	for k, v := range l.byTenant {
		byTenant[k] = v
	}
	return LimiterStatus{
		Active:        l.active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
		MaxPerTenant:  l.maxPerTenant,
		ByTenant:      byTenant,
	}
}
