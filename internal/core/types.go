package core

import (
	"context"
	"time"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// EntityKind names a persisted entity type.
type EntityKind string

const (
	KindProduct  EntityKind = "product"
	KindProvider EntityKind = "provider"
	KindMovement EntityKind = "movement"
)

// NaturalKey is one field/value pair that identifies an entity without its ID.
// Value is compared after headers.NormalizeKey folding.
type NaturalKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Normalized returns the key with its value folded for comparison.
func (k NaturalKey) Normalized() NaturalKey {
	return NaturalKey{Field: k.Field, Value: headers.NormalizeKey(k.Value)}
}

func (k NaturalKey) String() string {
	return k.Field + "=" + k.Value
}

// Fields holds typed values by canonical field name.
// Values are string, int64, float64, bool or time.Time.
type Fields map[string]any

// Record is an entity as handed to the Store.
type Record struct {
	Kind        EntityKind
	Keys        []NaturalKey
	Fields      Fields
	AutoCreated bool
	Tags        []string
}

// EntityRef points to a persisted entity.
type EntityRef struct {
	Tenant string     `json:"tenant"`
	Kind   EntityKind `json:"kind"`
	ID     string     `json:"id"`
}

// IsZero reports whether the ref is unset.
func (r EntityRef) IsZero() bool { return r.ID == "" }

// Store persists products, providers and movements.
//
// Implementations must be safe for concurrent use. Any error they return is
// treated as systemic and fails the running job.
type Store interface {
	// FindByNaturalKey returns the entity of kind whose key field equals the
	// normalized key value, scoped to tenant.
	FindByNaturalKey(ctx context.Context, tenant string, kind EntityKind, key NaturalKey) (EntityRef, bool, error)

	// Create inserts a new entity and indexes all its natural keys. A key
	// already held by another entity fails with an error wrapping
	// ErrDuplicateKey.
	Create(ctx context.Context, tenant string, rec Record) (EntityRef, error)

	// Update merges rec.Fields into the entity and indexes any new keys.
	Update(ctx context.Context, ref EntityRef, rec Record) error

	// AdjustDerived adds delta to a numeric field of the entity.
	AdjustDerived(ctx context.Context, ref EntityRef, field string, delta float64) error

	Ping(ctx context.Context) error
	Close() error
}

// JobStore keeps job state for status queries.
type JobStore interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

// Bus carries progress snapshots to subscribers.
type Bus interface {
	Publish(ctx context.Context, s Snapshot) error
	Subscribe(ctx context.Context, jobID string) (<-chan Snapshot, func(), error)
}

// Notifier is told when a job reaches a terminal state. Delivery is best
// effort; errors are logged and never change the job outcome.
type Notifier interface {
	NotifyJobComplete(ctx context.Context, jobID string, summary Snapshot) error
}

// AuditSink records what happened to each row.
type AuditSink interface {
	Record(ctx context.Context, e AuditEntry)
}

// AuditEntry is one row outcome.
type AuditEntry struct {
	JobID      string
	Tenant     string
	ImportType string
	Line       int
	Decision   Decision
	Target     EntityRef
	Reference  *EntityRef
	IPAddress  string
	UserAgent  string
	At         time.Time
}

// AuditReader lists recorded row outcomes. Stores that persist the audit
// trail implement it.
type AuditReader interface {
	AuditEntries(ctx context.Context, jobID string, limit int) ([]AuditEntry, error)
}

// Complexity grades how expensive a row is to import.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// Mode is how a job reports progress to the client.
type Mode string

const (
	ModePoll Mode = "POLL"
	ModePush Mode = "PUSH"
)

// Options control a single import.
type Options struct {
	Overwrite        bool `json:"overwriteExisting"`
	ValidateOnly     bool `json:"validateOnly"`
	NotifyOnComplete bool `json:"notifyOnComplete"`
}
