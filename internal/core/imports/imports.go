// Package imports defines the inventory import types: products, providers
// and stock movements.
//
// Each file builds one core.Definition. Default returns all of them for
// core.NewRegistry.
package imports

import (
	"github.com/JonMunkholm/stockimport/internal/core"
)

// Import type keys as used in URLs.
const (
	Products  = "products"
	Providers = "providers"
	Movements = "movements"
)

// Default returns every built-in import type.
func Default() []core.Definition {
	return []core.Definition{
		productDefinition(),
		providerDefinition(),
		movementDefinition(),
	}
}

// key returns a natural key for field when row holds a value for it.
func key(row core.TypedRow, field string) (core.NaturalKey, bool) {
	v := row.String(field)
	if v == "" {
		return core.NaturalKey{}, false
	}
	return core.NaturalKey{Field: field, Value: v}, true
}

// keys collects the natural keys present in row, in field order.
func keys(row core.TypedRow, fields ...string) []core.NaturalKey {
	out := make([]core.NaturalKey, 0, len(fields))
	for _, f := range fields {
		if k, ok := key(row, f); ok {
			out = append(out, k)
		}
	}
	return out
}

// copyFields copies the typed values of the listed fields that row holds.
func copyFields(row core.TypedRow, fields []string) core.Fields {
	out := make(core.Fields, len(fields))
	for _, f := range fields {
		if v, ok := row.Values[f]; ok {
			out[f] = v
		}
	}
	return out
}
