package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeStore is a minimal Store for package-internal tests.
type fakeStore struct {
	mu      sync.Mutex
	nextID  int
	index   map[string]EntityRef
	records map[string]Record
	adjust  map[string]float64
	updates int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		index:   make(map[string]EntityRef),
		records: make(map[string]Record),
		adjust:  make(map[string]float64),
	}
}

func (s *fakeStore) key(tenant string, kind EntityKind, k NaturalKey) string {
	return tenant + "|" + string(kind) + "|" + k.Field + "|" + k.Value
}

func (s *fakeStore) FindByNaturalKey(_ context.Context, tenant string, kind EntityKind, k NaturalKey) (EntityRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return EntityRef{}, false, s.err
	}
	ref, ok := s.index[s.key(tenant, kind, k)]
	return ref, ok, nil
}

func (s *fakeStore) Create(_ context.Context, tenant string, rec Record) (EntityRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return EntityRef{}, s.err
	}
	for _, k := range rec.Keys {
		if _, taken := s.index[s.key(tenant, rec.Kind, k)]; taken {
			return EntityRef{}, fmt.Errorf("%w: %s", ErrDuplicateKey, k)
		}
	}
	s.nextID++
	ref := EntityRef{Tenant: tenant, Kind: rec.Kind, ID: fmt.Sprintf("%s-%d", rec.Kind, s.nextID)}
	for _, k := range rec.Keys {
		s.index[s.key(tenant, rec.Kind, k)] = ref
	}
	s.records[ref.ID] = rec
	return ref, nil
}

func (s *fakeStore) Update(_ context.Context, ref EntityRef, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates++
	s.records[ref.ID] = rec
	return nil
}

func (s *fakeStore) AdjustDerived(_ context.Context, ref EntityRef, field string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjust[ref.ID+"|"+field] += delta
	return nil
}

func (s *fakeStore) Ping(context.Context) error { return s.err }
func (s *fakeStore) Close() error               { return nil }

func (s *fakeStore) count(kind EntityKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// fakeJobs records every saved job state.
type fakeJobs struct {
	mu    sync.Mutex
	saved []*Job
	err   error
}

func (f *fakeJobs) Save(_ context.Context, job *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, job)
	return nil
}

func (f *fakeJobs) Get(_ context.Context, id string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.saved) - 1; i >= 0; i-- {
		if f.saved[i].ID == id {
			return f.saved[i].Clone(), nil
		}
	}
	return nil, ErrJobNotFound
}

// fakeBus records published snapshots.
type fakeBus struct {
	mu   sync.Mutex
	got  []Snapshot
	fail bool
}

func (b *fakeBus) Publish(_ context.Context, s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("bus down")
	}
	b.got = append(b.got, s)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot)
	return ch, func() {}, nil
}

// fakeSweeper counts calls and can fail.
type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	removed int
	err     error
}

func (f *fakeSweeper) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, f.err
}

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
