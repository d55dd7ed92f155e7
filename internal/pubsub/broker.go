// Package pubsub carries job progress snapshots from the running job to
// push subscribers, either in process (Broker) or across instances through
// Redis (RedisBus).
//
// Delivery is lossy: a slow subscriber misses
// intermediate snapshots but always receives the latest one, and the
// channel is closed after the terminal snapshot.
package pubsub

import (
	"context"
	"sync"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Broker is an in-process core.Bus.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscriber]struct{}
	buffer int
}

type subscriber struct {
	ch   chan core.Snapshot
	once sync.Once
}

// NewBroker returns a broker whose subscriber channels hold buffer
// snapshots (DefaultBuffer when buffer <= 0).
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[string]map[*subscriber]struct{}), buffer: buffer}
}

// Publish implements core.Bus. It never blocks.
func (b *Broker) Publish(_ context.Context, s core.Snapshot) error {
	b.mu.RLock()
	for sub := range b.subs[s.JobID] {
		offer(sub.ch, s)
	}
	b.mu.RUnlock()

	if s.Terminal {
		b.closeJob(s.JobID)
	}
	return nil
}

// Subscribe implements core.Bus. The subscription ends when ctx is done,
// when the returned function is called or after the terminal snapshot.
func (b *Broker) Subscribe(ctx context.Context, jobID string) (<-chan core.Snapshot, func(), error) {
	sub := &subscriber{ch: make(chan core.Snapshot, b.buffer)}

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*subscriber]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() { b.remove(jobID, sub) }

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return sub.ch, unsubscribe, nil
}

// Subscribers returns how many subscribers jobID has.
func (b *Broker) Subscribers(jobID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[jobID])
}

func (b *Broker) remove(jobID string, sub *subscriber) {
	b.mu.Lock()
	if set, ok := b.subs[jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, jobID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

func (b *Broker) closeJob(jobID string) {
	b.mu.Lock()
	set := b.subs[jobID]
	delete(b.subs, jobID)
	b.mu.Unlock()

	for sub := range set {
		sub.close()
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// offer sends s without blocking. When the buffer is full the oldest
// pending snapshot is dropped to make room.
func offer(ch chan core.Snapshot, s core.Snapshot) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
