package reportModel

import "strings"

// Record is one patient row keyed by canonical column. Values are nil,
// string or float64.
type Record map[string]any

// NewRecord returns a record with every canonical column present and nil.
func NewRecord() Record {
	r := make(Record, len(Columns))
	for _, c := range Columns {
		r[c] = nil
	}
	return r
}

// IsNull treats a missing key, nil and a blank string as absent.
func (r Record) IsNull(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return true
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

// NullValueFields lists unset value fields in canonical order.
func (r Record) NullValueFields() []string {
	var nulls []string
	for _, f := range ValueFields {
		if r.IsNull(f) {
			nulls = append(nulls, f)
		}
	}
	return nulls
}

// String returns the value as a string, or "" when absent.
func (r Record) String(field string) string {
	if s, ok := r[field].(string); ok {
		return s
	}
	return ""
}

// Float returns the numeric value and whether it is set.
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Note returns the current extraction note.
func (r Record) Note() string {
	return r.String(ExtractionNote)
}

// AppendNote joins note onto the extraction note with " | ".
func (r Record) AppendNote(note string) {
	if note == "" {
		return
	}
	if existing := r.Note(); existing != "" {
		r[ExtractionNote] = existing + " | " + note
		return
	}
	r[ExtractionNote] = note
}

func (r Record) Clone() Record {
	c := make(Record, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}
