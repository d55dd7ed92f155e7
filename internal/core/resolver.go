package core

// resolver.go decides what happens to each valid row: create, skip,
// overwrite, or create a missing referenced entity first.
//
// Rows are resolved strictly in file order. A per-job cache remembers every
// natural key already resolved, so when two rows in the same file share a
// key the second sees the first one's outcome instead of racing it.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Decision is the outcome of resolving one row.
type Decision string

const (
	DecisionNew                  Decision = "NEW"
	DecisionSkippedDuplicate     Decision = "SKIPPED_DUPLICATE"
	DecisionOverwritten          Decision = "OVERWRITTEN"
	DecisionAutoCreatedReference Decision = "AUTO_CREATED_REFERENCE"
)

// Decisions lists every decision, in reporting order.
var Decisions = []Decision{
	DecisionNew,
	DecisionSkippedDuplicate,
	DecisionOverwritten,
	DecisionAutoCreatedReference,
}

// AutoCreatedTag marks placeholder entities created for missing references.
const AutoCreatedTag = "auto-created"

// Resolution is the outcome for one row.
type Resolution struct {
	Decision  Decision
	Target    EntityRef  // The row's own entity
	Reference *EntityRef // Placeholder created for this row, if any
}

// ResolverOptions control duplicate handling for one job.
type ResolverOptions struct {
	Tenant    string
	Overwrite bool
	DryRun    bool // Look up but never write
}

// Resolver resolves rows for one job. It is not safe for concurrent use;
// the job goroutine owns it.
type Resolver struct {
	store Store
	def   Definition
	opts  ResolverOptions

	// seen maps kind|field|normalized value to the entity already resolved
	// for it in this job.
	seen map[string]EntityRef
}

// NewResolver returns a resolver for one job.
func NewResolver(store Store, def Definition, opts ResolverOptions) *Resolver {
	return &Resolver{
		store: store,
		def:   def,
		opts:  opts,
		seen:  make(map[string]EntityRef),
	}
}

func cacheKey(kind EntityKind, k NaturalKey) string {
	n := k.Normalized()
	return string(kind) + "|" + n.Field + "|" + n.Value
}

// Resolve looks up the row's natural keys and persists it according to
// policy. A returned error is always systemic.
//
// ctx only interrupts lookups made before the row's first write. Once a
// write starts the row runs to completion, side effects included.
func (r *Resolver) Resolve(ctx context.Context, row TypedRow) (Resolution, error) {
	var res Resolution
	writeCtx := context.WithoutCancel(ctx)

	refs := make(map[string]EntityRef, len(r.def.References))
	for _, ref := range r.def.References {
		if !row.Has(ref.Field) {
			continue
		}
		target, created, err := r.resolveReference(ctx, ref, row)
		if err != nil {
			return Resolution{}, err
		}
		refs[ref.Field] = target
		if created {
			t := target
			res.Reference = &t
			ctx = writeCtx
		}
	}

	keys := r.def.Keys(row, refs)
	existing, found, err := r.find(ctx, r.def.Kind, keys)
	if err != nil {
		return Resolution{}, err
	}

	rec := r.def.Build(row, refs)
	rec.Kind = r.def.Kind
	rec.Keys = normalizeKeys(keys)

	if !found {
		target, err := r.create(writeCtx, rec)
		switch {
		case err == nil:
			if r.def.OnCreate != nil && !r.opts.DryRun {
				if err := r.def.OnCreate(writeCtx, r.store, row, refs); err != nil {
					return Resolution{}, storeError("apply side effects", err)
				}
			}
			res.Target = target
			res.Decision = DecisionNew

		case errors.Is(err, ErrDuplicateKey):
			// Another writer took the key after our lookup.
			existing, found, err = r.refind(writeCtx, r.def.Kind, keys, err)
			if err != nil {
				return Resolution{}, err
			}

		default:
			return Resolution{}, err
		}
	}

	switch {
	case !found:
		// Created above.

	case r.opts.Overwrite:
		if !r.opts.DryRun {
			if err := r.store.Update(writeCtx, existing, rec); err != nil {
				return Resolution{}, storeError("update "+string(r.def.Kind), err)
			}
		}
		res.Target = existing
		res.Decision = DecisionOverwritten

	default:
		res.Target = existing
		res.Decision = DecisionSkippedDuplicate
	}

	r.remember(r.def.Kind, keys, res.Target)

	if res.Reference != nil && res.Decision == DecisionNew {
		res.Decision = DecisionAutoCreatedReference
	}
	return res, nil
}

// resolveReference finds the referenced entity or creates a placeholder.
func (r *Resolver) resolveReference(ctx context.Context, ref Reference, row TypedRow) (EntityRef, bool, error) {
	keys := ref.Lookup(row)
	target, found, err := r.find(ctx, ref.Kind, keys)
	if err != nil {
		return EntityRef{}, false, err
	}
	if found {
		return target, false, nil
	}

	rec := ref.Placeholder(row)
	rec.Kind = ref.Kind
	rec.AutoCreated = true
	rec.Tags = appendTag(rec.Tags, AutoCreatedTag)
	if len(rec.Keys) == 0 {
		rec.Keys = keys
	}

	writeCtx := context.WithoutCancel(ctx)
	target, err = r.create(writeCtx, rec)
	if errors.Is(err, ErrDuplicateKey) {
		target, _, err = r.refind(writeCtx, ref.Kind, keys, err)
		if err != nil {
			return EntityRef{}, false, err
		}
		r.remember(ref.Kind, keys, target)
		return target, false, nil
	}
	if err != nil {
		return EntityRef{}, false, err
	}
	r.remember(ref.Kind, rec.Keys, target)
	return target, true, nil
}

// refind looks keys up again after Create lost a race for one of them. The
// winner must be visible; if it is not, dupErr is returned as systemic.
func (r *Resolver) refind(ctx context.Context, kind EntityKind, keys []NaturalKey, dupErr error) (EntityRef, bool, error) {
	target, found, err := r.find(ctx, kind, keys)
	if err != nil {
		return EntityRef{}, false, err
	}
	if !found {
		return EntityRef{}, false, storeError("create "+string(kind), dupErr)
	}
	return target, true, nil
}

// find checks the job cache, then the store, for each key in order.
func (r *Resolver) find(ctx context.Context, kind EntityKind, keys []NaturalKey) (EntityRef, bool, error) {
	for _, k := range keys {
		if k.Value == "" {
			continue
		}
		if target, ok := r.seen[cacheKey(kind, k)]; ok {
			return target, true, nil
		}
	}
	for _, k := range keys {
		if k.Value == "" {
			continue
		}
		target, ok, err := r.store.FindByNaturalKey(ctx, r.opts.Tenant, kind, k.Normalized())
		if err != nil {
			return EntityRef{}, false, storeError(fmt.Sprintf("find %s by %s", kind, k.Field), err)
		}
		if ok {
			return target, true, nil
		}
	}
	return EntityRef{}, false, nil
}

func (r *Resolver) create(ctx context.Context, rec Record) (EntityRef, error) {
	rec.Keys = normalizeKeys(rec.Keys)
	if r.opts.DryRun {
		return EntityRef{Tenant: r.opts.Tenant, Kind: rec.Kind, ID: "dry-run-" + uuid.NewString()}, nil
	}
	target, err := r.store.Create(ctx, r.opts.Tenant, rec)
	if errors.Is(err, ErrDuplicateKey) {
		return EntityRef{}, err
	}
	if err != nil {
		return EntityRef{}, storeError("create "+string(rec.Kind), err)
	}
	return target, nil
}

func (r *Resolver) remember(kind EntityKind, keys []NaturalKey, target EntityRef) {
	for _, k := range keys {
		if k.Value != "" {
			r.seen[cacheKey(kind, k)] = target
		}
	}
}

func normalizeKeys(keys []NaturalKey) []NaturalKey {
	out := make([]NaturalKey, 0, len(keys))
	for _, k := range keys {
		if n := k.Normalized(); n.Value != "" {
			out = append(out, n)
		}
	}
	return out
}

func appendTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
