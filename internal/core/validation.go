package core

// validation.go coerces mapped rows into typed values.
//
// Each canonical field has a FieldRule. Coerce applies every rule and
// collects all violations instead of stopping at the first, so a user sees
// every problem in a row at once.

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/stockimport/internal/headers"
)

// RuleType is the value type a field accepts.
type RuleType int

const (
	RuleText RuleType = iota
	RuleInteger
	RuleNumber
	RulePositiveNumber
	RuleEnum
	RuleDate
)

func (t RuleType) String() string {
	switch t {
	case RuleText:
		return "text"
	case RuleInteger:
		return "integer"
	case RuleNumber:
		return "number"
	case RulePositiveNumber:
		return "positive number"
	case RuleEnum:
		return "enum"
	case RuleDate:
		return "date"
	default:
		return "value"
	}
}

// FieldRule declares how one canonical field is validated.
type FieldRule struct {
	Field    string
	Label    string // Shown in templates; defaults to Field
	Type     RuleType
	Required bool

	MaxLen       int               // RuleText; 0 means unlimited
	MinExclusive bool              // RulePositiveNumber; reject zero too
	EnumValues   []string          // RuleEnum canonical values
	EnumAliases  map[string]string // RuleEnum alternate spelling -> canonical value
	NoFuture     bool              // RuleDate; reject dates after the processing day

	Normalizer func(string) string // Applied to the cleaned cell before typing
}

// FieldRuleSet is the ordered rule list for an import type.
type FieldRuleSet []FieldRule

// Required returns the fields that must be present.
func (rs FieldRuleSet) Required() []string {
	var out []string
	for _, r := range rs {
		if r.Required {
			out = append(out, r.Field)
		}
	}
	return out
}

// Fields returns the canonical fields in rule order.
func (rs FieldRuleSet) Fields() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Field
	}
	return out
}

// Rule returns the rule for field.
func (rs FieldRuleSet) Rule(field string) (FieldRule, bool) {
	for _, r := range rs {
		if r.Field == field {
			return r, true
		}
	}
	return FieldRule{}, false
}

// RawRow is one data row as read from the file.
type RawRow struct {
	Line  int // 1-based line in the file, header and banner rows included
	Cells []string
}

// FieldError is one validation failure.
type FieldError struct {
	Row     int    `json:"fila"`
	Column  string `json:"columna"`
	Field   string `json:"campo,omitempty"`
	Value   string `json:"valor,omitempty"`
	Message string `json:"mensaje"`
}

func (e FieldError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, %s: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// TypedRow is a coerced row. A row with errors is never persisted.
type TypedRow struct {
	RowNumber int
	Values    Fields
	Extra     map[string]string // Unmapped columns keyed by raw header
	Errors    []FieldError
}

// Valid reports whether the row has no errors.
func (r TypedRow) Valid() bool { return len(r.Errors) == 0 }

// Has reports whether field holds a value.
func (r TypedRow) Has(field string) bool {
	_, ok := r.Values[field]
	return ok
}

// String returns a text value, or the formatted value for other types.
func (r TypedRow) String(field string) string {
	switch v := r.Values[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	case float64:
		return formatNumber(v)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a numeric value as float64.
func (r TypedRow) Float(field string) float64 {
	switch v := r.Values[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Time returns a date value.
func (r TypedRow) Time(field string) time.Time {
	t, _ := r.Values[field].(time.Time)
	return t
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// Coerce validates row against rules and returns the typed row.
// now is the processing time used by NoFuture rules.
func Coerce(row RawRow, cm headers.ColumnMap, rules FieldRuleSet, now time.Time) TypedRow {
	out := TypedRow{
		RowNumber: row.Line,
		Values:    make(Fields, len(rules)),
	}

	for _, rule := range rules {
		column := rule.Field
		raw := ""
		if i, ok := cm.Index(rule.Field); ok {
			column = cm.Header(rule.Field)
			if i < len(row.Cells) {
				raw = CleanCell(row.Cells[i])
			}
		}

		if raw == "" {
			if rule.Required {
				out.Errors = append(out.Errors, FieldError{
					Row:     row.Line,
					Column:  column,
					Field:   rule.Field,
					Message: "required field is empty",
				})
			}
			continue
		}

		if rule.Normalizer != nil {
			raw = rule.Normalizer(raw)
		}

		v, err := coerceValue(raw, rule, now)
		if err != nil {
			out.Errors = append(out.Errors, FieldError{
				Row:     row.Line,
				Column:  column,
				Field:   rule.Field,
				Value:   raw,
				Message: err.Error(),
			})
			continue
		}
		out.Values[rule.Field] = v
	}

	for _, col := range cm.Unmapped() {
		if col.Header == "" || col.Index >= len(row.Cells) {
			continue
		}
		if v := strings.TrimSpace(row.Cells[col.Index]); v != "" {
			if out.Extra == nil {
				out.Extra = make(map[string]string)
			}
			out.Extra[col.Header] = v
		}
	}

	return out
}

// coerceValue types one non-empty cell.
func coerceValue(raw string, rule FieldRule, now time.Time) (any, error) {
	switch rule.Type {
	case RuleText:
		if rule.MaxLen > 0 && utf8.RuneCountInString(raw) > rule.MaxLen {
			return nil, fmt.Errorf("text is longer than %d characters", rule.MaxLen)
		}
		return raw, nil

	case RuleInteger:
		f, err := ParseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return nil, fmt.Errorf("must be a whole number")
		}
		return int64(f), nil

	case RuleNumber:
		f, err := ParseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return f, nil

	case RulePositiveNumber:
		f, err := ParseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		if f < 0 {
			return nil, fmt.Errorf("must not be negative")
		}
		if rule.MinExclusive && f == 0 {
			return nil, fmt.Errorf("must be greater than zero")
		}
		return f, nil

	case RuleEnum:
		key := headers.NormalizeKey(raw)
		for _, v := range rule.EnumValues {
			if headers.NormalizeKey(v) == key {
				return v, nil
			}
		}
		for alias, v := range rule.EnumAliases {
			if headers.NormalizeKey(alias) == key {
				return v, nil
			}
		}
		return nil, fmt.Errorf("invalid enum value %q, must be one of: %s", raw, strings.Join(rule.EnumValues, ", "))

	case RuleDate:
		t, err := ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q (use YYYY-MM-DD or DD/MM/YYYY)", raw)
		}
		if rule.NoFuture && afterDay(t, now) {
			return nil, fmt.Errorf("date %s is in the future", t.Format("2006-01-02"))
		}
		return t, nil
	}

	return raw, nil
}
