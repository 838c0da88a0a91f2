package merge

import (
	"fmt"
	"strings"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

// Merge folds one tier's output into record. Narrative fields collect
// distinct values joined by " | ", everything else keeps its first value.
// Flags travel only with the value they were reported against.
func Merge(record rm.Record, source rm.Record) {
	for field, value := range source {
		if value == nil || rm.IsFlagName(field) {
			continue
		}
		if !rm.IsColumn(field) || field == rm.ExtractionNote || field == rm.DataQuality {
			continue
		}

		written := false
		if rm.In(rm.NarrativeFields, field) {
			mergeNarrative(record, field, value)
		} else if record.IsNull(field) {
			record[field] = value
			written = true
		}

		flag := rm.FlagOf(field)
		if !rm.IsFlagField(flag) || source[flag] == nil || record[flag] != nil {
			continue
		}
		// a flag describes one reading; it only follows the value it came with
		if written || sameValue(record[field], value) {
			record[flag] = source[flag]
		}
	}
}

// sameValue compares scalars; values of uncomparable types are never the same.
func sameValue(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		return false
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return a == b
}

func mergeNarrative(record rm.Record, field string, value any) {
	if _, isString := value.(string); !isString && record.IsNull(field) {
		record[field] = value
		return
	}
	incoming := strings.TrimSpace(fmt.Sprint(value))
	if incoming == "" {
		return
	}
	if record.IsNull(field) {
		record[field] = incoming
		return
	}
	existing := fmt.Sprint(record[field])
	for _, part := range strings.Split(existing, " | ") {
		if strings.EqualFold(strings.TrimSpace(part), incoming) {
			return
		}
	}
	record[field] = existing + " | " + incoming
}

// MarkGraphPresent records that a graph page proves a speciality test was
// done. ECG and generic graphs are counted by the caller only.
func MarkGraphPresent(record rm.Record, category rm.GraphCategory) {
	field, ok := rm.GraphTargets[category]
	if !ok {
		return
	}
	if record.IsNull(field) {
		record[field] = rm.GraphPresent
	}
}
