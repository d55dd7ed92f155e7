// Package memory keeps inventory entities and job state in process memory.
//
// It backs the default development profile and the service tests. Both
// stores are safe for concurrent use.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// Entity is a stored product, provider or movement.
type Entity struct {
	Ref         core.EntityRef
	Fields      core.Fields
	Keys        []core.NaturalKey
	AutoCreated bool
	Tags        []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is an in-memory core.Store.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*Entity // id -> entity
	index    map[string]string  // tenant|kind|field|value -> id
	now      func() time.Time

	// FailWith, when set, is returned by every call. Tests use it to
	// simulate an unavailable store.
	FailWith error
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		entities: make(map[string]*Entity),
		index:    make(map[string]string),
		now:      time.Now,
	}
}

func indexKey(tenant string, kind core.EntityKind, k core.NaturalKey) string {
	return tenant + "|" + string(kind) + "|" + k.Field + "|" + k.Value
}

// FindByNaturalKey implements core.Store.
func (s *Store) FindByNaturalKey(ctx context.Context, tenant string, kind core.EntityKind, key core.NaturalKey) (core.EntityRef, bool, error) {
	if err := s.check(ctx); err != nil {
		return core.EntityRef{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.index[indexKey(tenant, kind, key.Normalized())]
	if !ok {
		return core.EntityRef{}, false, nil
	}
	return s.entities[id].Ref, true, nil
}

// Create implements core.Store.
func (s *Store) Create(ctx context.Context, tenant string, rec core.Record) (core.EntityRef, error) {
	if err := s.check(ctx); err != nil {
		return core.EntityRef{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range rec.Keys {
		if _, taken := s.index[indexKey(tenant, rec.Kind, k)]; taken {
			return core.EntityRef{}, fmt.Errorf("%w: %s for %s", core.ErrDuplicateKey, k, rec.Kind)
		}
	}

	now := s.now()
	e := &Entity{
		Ref:         core.EntityRef{Tenant: tenant, Kind: rec.Kind, ID: uuid.NewString()},
		Fields:      cloneFields(rec.Fields),
		Keys:        append([]core.NaturalKey(nil), rec.Keys...),
		AutoCreated: rec.AutoCreated,
		Tags:        append([]string(nil), rec.Tags...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.entities[e.Ref.ID] = e
	for _, k := range rec.Keys {
		s.index[indexKey(tenant, rec.Kind, k)] = e.Ref.ID
	}
	return e.Ref, nil
}

// Update implements core.Store. An overwritten placeholder stops being
// auto-created.
func (s *Store) Update(ctx context.Context, ref core.EntityRef, rec core.Record) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[ref.ID]
	if !ok {
		return fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
	}
	for k, v := range rec.Fields {
		e.Fields[k] = v
	}
	for _, k := range rec.Keys {
		ik := indexKey(ref.Tenant, ref.Kind, k)
		if _, taken := s.index[ik]; taken {
			continue
		}
		s.index[ik] = ref.ID
		e.Keys = append(e.Keys, k)
	}
	e.AutoCreated = false
	e.UpdatedAt = s.now()
	return nil
}

// AdjustDerived implements core.Store.
func (s *Store) AdjustDerived(ctx context.Context, ref core.EntityRef, field string, delta float64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[ref.ID]
	if !ok {
		return fmt.Errorf("%s %s not found", ref.Kind, ref.ID)
	}
	current, _ := toFloat(e.Fields[field])
	e.Fields[field] = current + delta
	e.UpdatedAt = s.now()
	return nil
}

// Ping implements core.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.check(ctx)
}

// Close implements core.Store.
func (s *Store) Close() error { return nil }

func (s *Store) check(ctx context.Context) error {
	if s.FailWith != nil {
		return s.FailWith
	}
	return ctx.Err()
}

// Get returns a copy of an entity.
func (s *Store) Get(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, false
	}
	c := *e
	c.Fields = cloneFields(e.Fields)
	return c, true
}

// List returns copies of every entity of kind for tenant, oldest first.
func (s *Store) List(tenant string, kind core.EntityKind) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, e := range s.entities {
		if e.Ref.Tenant == tenant && e.Ref.Kind == kind {
			c := *e
			c.Fields = cloneFields(e.Fields)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ref.ID < out[j].Ref.ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns how many entities of kind tenant has.
func (s *Store) Count(tenant string, kind core.EntityKind) int {
	return len(s.List(tenant, kind))
}

func cloneFields(f core.Fields) core.Fields {
	out := make(core.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// JobStore keeps jobs as JSON so readers never share memory with the
// running job.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]storedJob
}

type storedJob struct {
	data      []byte
	updatedAt time.Time
	terminal  bool
}

// NewJobStore returns an empty job store.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]storedJob)}
}

// Save implements core.JobStore. A save with an older sequence number than
// the stored one is ignored.
func (s *JobStore) Save(_ context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.jobs[job.ID]; ok {
		var seq struct {
			Seq int64 `json:"seq"`
		}
		if json.Unmarshal(prev.data, &seq) == nil && seq.Seq > job.Seq {
			return nil
		}
	}
	s.jobs[job.ID] = storedJob{data: data, updatedAt: job.UpdatedAt, terminal: job.Status.Terminal()}
	return nil
}

// Get implements core.JobStore.
func (s *JobStore) Get(_ context.Context, id string) (*core.Job, error) {
	s.mu.RLock()
	stored, ok := s.jobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	var job core.Job
	if err := json.Unmarshal(stored.data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Sweep drops finished jobs last updated before cutoff. Running jobs are
// kept whatever their age.
func (s *JobStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, j := range s.jobs {
		if j.terminal && j.updatedAt.Before(cutoff) {
			delete(s.jobs, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
