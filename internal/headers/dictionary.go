package headers

import (
	"fmt"
	"sort"
	"strings"
)

// Entry lists the alias phrasings registered for one canonical field.
type Entry struct {
	Field   string   `mapstructure:"field" validate:"required"`
	Aliases []string `mapstructure:"aliases" validate:"required,min=1,dive,required"`
}

// Alias is one registered phrasing after normalization.
type Alias struct {
	Field  string
	Phrase string
	Tokens []string

	order int
	set   map[string]struct{}
}

// Dictionary is an immutable set of header aliases.
// It is safe for concurrent use.
type Dictionary struct {
	aliases   []Alias
	fields    []string
	stopWords map[string]struct{}
	threshold float64
}

// Option configures a Dictionary.
type Option func(*Dictionary)

// WithThreshold sets the partial-match threshold (0 < t <= 1).
func WithThreshold(t float64) Option {
	return func(d *Dictionary) {
		if t > 0 && t <= 1 {
			d.threshold = t
		}
	}
}

// WithStopWords replaces the stop-word list.
func WithStopWords(words []string) Option {
	return func(d *Dictionary) {
		d.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			for _, tok := range Clean(w) {
				d.stopWords[tok] = struct{}{}
			}
		}
	}
}

// MaxAliasTokens is the longest alias accepted, counted after stop-word removal.
const MaxAliasTokens = 5

// New builds a dictionary from entries. Registration order is entry order,
// then alias order within the entry.
//
// It fails when an alias normalizes to nothing, is longer than
// MaxAliasTokens, or has the same token set as an alias of another field.
func New(entries []Entry, opts ...Option) (*Dictionary, error) {
	d := &Dictionary{threshold: DefaultThreshold}
	WithStopWords(DefaultStopWords)(d)
	for _, opt := range opts {
		opt(d)
	}

	owners := make(map[string]string) // sorted token set -> field
	seenField := make(map[string]bool)

	for _, e := range entries {
		field := strings.TrimSpace(e.Field)
		if field == "" {
			return nil, fmt.Errorf("alias entry with empty field name")
		}
		if !seenField[field] {
			seenField[field] = true
			d.fields = append(d.fields, field)
		}

		// The canonical name is always an alias of itself.
		phrases := append([]string{field}, e.Aliases...)
		for _, phrase := range phrases {
			tokens := tokenize(phrase, d.stopWords)
			if len(tokens) == 0 {
				return nil, fmt.Errorf("alias %q for %s is empty after normalization", phrase, field)
			}
			if len(tokens) > MaxAliasTokens {
				return nil, fmt.Errorf("alias %q for %s has %d tokens (max %d)", phrase, field, len(tokens), MaxAliasTokens)
			}

			sig := signature(tokens)
			if owner, ok := owners[sig]; ok {
				if owner != field {
					return nil, fmt.Errorf("alias %q for %s collides with an alias of %s", phrase, field, owner)
				}
				continue
			}
			owners[sig] = field

			set := make(map[string]struct{}, len(tokens))
			for _, tok := range tokens {
				set[tok] = struct{}{}
			}
			d.aliases = append(d.aliases, Alias{
				Field:  field,
				Phrase: phrase,
				Tokens: tokens,
				order:  len(d.aliases),
				set:    set,
			})
		}
	}

	return d, nil
}

// MustNew is New for static dictionaries; it panics on error.
func MustNew(entries []Entry, opts ...Option) *Dictionary {
	d, err := New(entries, opts...)
	if err != nil {
		panic(fmt.Sprintf("headers: %v", err))
	}
	return d
}

// signature identifies an alias by its token set.
func signature(tokens []string) string {
	sorted := append([]string(nil), tokens...)
	sort.Strings(sorted)
	out := sorted[:0]
	for i, tok := range sorted {
		if i > 0 && tok == sorted[i-1] {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// Fields returns the canonical fields in registration order.
func (d *Dictionary) Fields() []string {
	return append([]string(nil), d.fields...)
}

// Aliases returns the registered phrasings for field.
func (d *Dictionary) Aliases(field string) []string {
	var out []string
	for _, a := range d.aliases {
		if a.Field == field {
			out = append(out, a.Phrase)
		}
	}
	return out
}

// Threshold returns the partial-match threshold.
func (d *Dictionary) Threshold() float64 {
	return d.threshold
}
