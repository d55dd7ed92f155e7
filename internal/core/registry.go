package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// Reference declares that a field of one import type names another entity.
type Reference struct {
	Field string     // Canonical field holding the reference, e.g. "producto"
	Kind  EntityKind // Referenced entity kind

	// Lookup returns the keys that identify the referenced entity, in
	// priority order.
	Lookup func(row TypedRow) []NaturalKey

	// Placeholder builds the minimal entity created when the lookup misses.
	Placeholder func(row TypedRow) Record
}

// Definition contains everything needed to import one entity type.
type Definition struct {
	Key        string // URL key: "products"
	Label      string
	Kind       EntityKind
	Complexity Complexity

	Rules   FieldRuleSet
	Aliases []headers.Entry

	// Keys returns the natural keys of a row in priority order. refs holds
	// the resolved references by field.
	Keys func(row TypedRow, refs map[string]EntityRef) []NaturalKey

	References []Reference

	// Check runs cross-field rules on a row that passed Coerce.
	Check func(row TypedRow) []FieldError

	// Build returns the record to persist for a valid row.
	Build func(row TypedRow, refs map[string]EntityRef) Record

	// OnCreate applies side effects after a new entity is persisted.
	OnCreate func(ctx context.Context, store Store, row TypedRow, refs map[string]EntityRef) error
}

// ImportType is the read-only view of a definition served to clients.
type ImportType struct {
	Key        string      `json:"key"`
	Label      string      `json:"label"`
	Complexity Complexity  `json:"complexity"`
	Fields     []FieldInfo `json:"fields"`
}

// FieldInfo describes one canonical field and its accepted headers.
type FieldInfo struct {
	Field      string   `json:"field"`
	Label      string   `json:"label"`
	Type       string   `json:"type"`
	Required   bool     `json:"required"`
	EnumValues []string `json:"enumValues,omitempty"`
	Aliases    []string `json:"aliases"`
}

// Registry holds the import definitions and their header dictionaries.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	defs  map[string]Definition
	dicts map[string]*headers.Dictionary
	order []string
}

// NewRegistry builds a dictionary per definition. An alias file, when given,
// replaces the built-in aliases of every import type it lists.
func NewRegistry(defs []Definition, file *headers.AliasFile) (*Registry, error) {
	r := &Registry{
		defs:  make(map[string]Definition, len(defs)),
		dicts: make(map[string]*headers.Dictionary, len(defs)),
	}

	var opts []headers.Option
	if file != nil {
		opts = file.Options()
		for key := range file.Types {
			if !hasDefinition(defs, key) {
				return nil, fmt.Errorf("alias file lists unknown import type %q", key)
			}
		}
	}

	for _, def := range defs {
		if _, exists := r.defs[def.Key]; exists {
			return nil, fmt.Errorf("import type already registered: %s", def.Key)
		}
		if def.Keys == nil || def.Build == nil {
			return nil, fmt.Errorf("import type %s: Keys and Build are required", def.Key)
		}

		entries := def.Aliases
		if file != nil {
			if custom, ok := file.Types[def.Key]; ok {
				entries = custom
			}
		}
		entries = withRuleFields(entries, def.Rules)

		dict, err := headers.New(entries, opts...)
		if err != nil {
			return nil, fmt.Errorf("import type %s: %w", def.Key, err)
		}

		r.defs[def.Key] = def
		r.dicts[def.Key] = dict
		r.order = append(r.order, def.Key)
	}

	sort.Strings(r.order)
	return r, nil
}

func hasDefinition(defs []Definition, key string) bool {
	for _, d := range defs {
		if d.Key == key {
			return true
		}
	}
	return false
}

// withRuleFields adds an empty entry for every rule field the alias list
// leaves out, so canonical names always map.
func withRuleFields(entries []headers.Entry, rules FieldRuleSet) []headers.Entry {
	out := append([]headers.Entry(nil), entries...)
	for _, rule := range rules {
		found := false
		for _, e := range entries {
			if e.Field == rule.Field {
				found = true
				break
			}
		}
		if !found {
			out = append(out, headers.Entry{Field: rule.Field})
		}
	}
	return out
}

// Get returns the definition and dictionary for key.
func (r *Registry) Get(key string) (Definition, *headers.Dictionary, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	def, ok := r.defs[key]
	if !ok {
		return Definition{}, nil, fmt.Errorf("%w: %q", ErrUnknownImportType, key)
	}
	return def, r.dicts[key], nil
}

// Types returns every import type sorted by key.
func (r *Registry) Types() []ImportType {
	out := make([]ImportType, 0, len(r.order))
	for _, key := range r.order {
		def, dict := r.defs[key], r.dicts[key]
		it := ImportType{Key: def.Key, Label: def.Label, Complexity: def.Complexity}
		for _, rule := range def.Rules {
			label := rule.Label
			if label == "" {
				label = rule.Field
			}
			it.Fields = append(it.Fields, FieldInfo{
				Field:      rule.Field,
				Label:      label,
				Type:       rule.Type.String(),
				Required:   rule.Required,
				EnumValues: rule.EnumValues,
				Aliases:    dict.Aliases(rule.Field),
			})
		}
		out = append(out, it)
	}
	return out
}

// Template returns the header row a user can start a file from.
func (r *Registry) Template(key string) ([]string, error) {
	def, _, err := r.Get(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(def.Rules))
	for i, rule := range def.Rules {
		out[i] = rule.Label
		if out[i] == "" {
			out[i] = rule.Field
		}
	}
	return out, nil
}

// Len returns the number of import types.
func (r *Registry) Len() int { return len(r.defs) }
