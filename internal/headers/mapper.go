package headers

import (
	"fmt"
	"strconv"
	"strings"
)

// WarningKind identifies a non-fatal mapping problem.
type WarningKind string

const (
	// WarnDuplicateMapping: a later column matched a field that an earlier
	// column already claimed. The first column wins; the later one is carried
	// as extra data.
	WarnDuplicateMapping WarningKind = "DuplicateMapping"

	// WarnUnmappedColumn: the header matched no alias. The column is carried
	// as extra data.
	WarnUnmappedColumn WarningKind = "UnmappedColumn"

	// WarnMissingColumn: no column maps to a required field. Every row will
	// fail validation for that field.
	WarnMissingColumn WarningKind = "MissingRequiredColumn"

	// WarnSkippedRows: rows above the header were not imported.
	WarnSkippedRows WarningKind = "SkippedLeadingRows"
)

// Warning describes a mapping problem for one column.
type Warning struct {
	Kind    WarningKind `json:"tipo"`
	Column  int         `json:"columna"`
	Header  string      `json:"encabezado"`
	Field   string      `json:"campo,omitempty"`
	Message string      `json:"mensaje"`
}

// Column is one spreadsheet column and the field it maps to.
type Column struct {
	Index  int
	Header string
	Field  string // Empty when unmapped
	Tokens []string
}

// ColumnMap maps column positions to canonical fields. A field maps to at
// most one column.
type ColumnMap struct {
	Columns []Column
	byField map[string]int
}

// Index returns the column position for field.
func (m ColumnMap) Index(field string) (int, bool) {
	i, ok := m.byField[field]
	return i, ok
}

// Header returns the raw header of the column mapped to field.
func (m ColumnMap) Header(field string) string {
	if i, ok := m.byField[field]; ok && i < len(m.Columns) {
		return m.Columns[i].Header
	}
	return ""
}

// MappedCount returns the number of mapped columns.
func (m ColumnMap) MappedCount() int {
	return len(m.byField)
}

// Unmapped returns the columns carried as extra data.
func (m ColumnMap) Unmapped() []Column {
	var out []Column
	for _, c := range m.Columns {
		if c.Field == "" {
			out = append(out, c)
		}
	}
	return out
}

// Fields returns the mapped fields in column order.
func (m ColumnMap) Fields() []string {
	var out []string
	for _, c := range m.Columns {
		if c.Field != "" {
			out = append(out, c.Field)
		}
	}
	return out
}

// MapHeaders normalizes every header and builds the column map.
func (d *Dictionary) MapHeaders(headers []string) (ColumnMap, []Warning) {
	cm := ColumnMap{
		Columns: make([]Column, len(headers)),
		byField: make(map[string]int),
	}
	var warnings []Warning

	for i, h := range headers {
		col := Column{Index: i, Header: strings.TrimSpace(h)}
		if col.Header == "" {
			cm.Columns[i] = col
			continue
		}

		m := d.Normalize(h)
		col.Tokens = m.Tokens

		switch {
		case !m.Mapped:
			warnings = append(warnings, Warning{
				Kind:    WarnUnmappedColumn,
				Column:  i + 1,
				Header:  col.Header,
				Message: fmt.Sprintf("column %q does not match any known field", col.Header),
			})
		case hasField(cm.byField, m.Field):
			first := cm.Columns[cm.byField[m.Field]]
			warnings = append(warnings, Warning{
				Kind:   WarnDuplicateMapping,
				Column: i + 1,
				Header: col.Header,
				Field:  m.Field,
				Message: fmt.Sprintf("column %q also matches %s, already taken by column %q; ignored",
					col.Header, m.Field, first.Header),
			})
		default:
			col.Field = m.Field
			cm.byField[m.Field] = i
		}

		cm.Columns[i] = col
	}

	return cm, warnings
}

func hasField(byField map[string]int, field string) bool {
	_, ok := byField[field]
	return ok
}

// NewColumnMap builds a column map from explicit header-to-field pairs.
// fields[i] is the canonical field for headers[i]; empty means unmapped.
// Later duplicates are left unmapped.
func NewColumnMap(headers, fields []string) ColumnMap {
	cm := ColumnMap{
		Columns: make([]Column, len(headers)),
		byField: make(map[string]int),
	}
	for i, h := range headers {
		col := Column{Index: i, Header: h}
		if i < len(fields) && fields[i] != "" && !hasField(cm.byField, fields[i]) {
			col.Field = fields[i]
			cm.byField[fields[i]] = i
		}
		cm.Columns[i] = col
	}
	return cm
}

// MissingColumns returns a warning for every required field with no column.
func MissingColumns(cm ColumnMap, required []string) []Warning {
	var out []Warning
	for _, f := range required {
		if _, ok := cm.Index(f); ok {
			continue
		}
		out = append(out, Warning{
			Kind:    WarnMissingColumn,
			Field:   f,
			Message: fmt.Sprintf("no column maps to required field %s", f),
		})
	}
	return out
}

// SkippedRows returns the warning for rows found above the header. lines
// are 1-based file lines.
func SkippedRows(lines []int) Warning {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return Warning{
		Kind:    WarnSkippedRows,
		Message: fmt.Sprintf("rows above the header were ignored: lines %s", strings.Join(parts, ", ")),
	}
}
