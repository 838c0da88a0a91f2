package validator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

const (
	NoteNameNotFound = "NAME_NOT_FOUND"

	differentialTolerance = 10.0
	bmiTolerance          = 3.0
)

var (
	logger            = logger_i.NewLogger("validator")
	embeddedFlagRegex = regexp.MustCompile(`(?i)^([\d.]+)\s*(L|H|Low|High)$`)
	validBloodGroups  = map[string]struct{}{"A": {}, "B": {}, "AB": {}, "O": {}}
)

// Validate turns any tier output into a clean record carrying every
// canonical column. existingNote is the pipeline's accumulated note.
func Validate(raw rm.Record, filename string, existingNote string) rm.Record {
	log := logger.With("file", filename)
	var notes []string
	if existingNote != "" {
		notes = append(notes, existingNote)
	}

	cleaned := make(rm.Record, len(rm.Columns))
	for _, col := range rm.Columns {
		cleaned[col] = nil
	}
	for _, col := range rm.Columns {
		val := raw[col]
		if nested, ok := val.(map[string]any); ok {
			if v, hasValue := nested["value"]; hasValue {
				cleaned[col] = v
				if flag := rm.FlagOf(col); rm.IsFlagField(flag) && truthy(nested["flag"]) {
					cleaned[flag] = nested["flag"]
				}
				continue
			}
		}
		if cleaned[col] == nil {
			cleaned[col] = val
		}
	}

	for _, col := range rm.Columns {
		if s, ok := cleaned[col].(string); ok {
			cleaned[col] = strings.TrimSpace(s)
		}
	}

	for _, col := range rm.Columns {
		if !rm.In(rm.NumericFields, col) {
			continue
		}
		value, flagHint := coerceNumeric(cleaned[col], col, log)
		cleaned[col] = value
		flag := rm.FlagOf(col)
		if flagHint != "" && rm.IsFlagField(flag) && cleaned[flag] == nil {
			cleaned[flag] = flagHint
			log.Debug("flag taken from embedded value", "field", flag, "flag", flagHint)
		}
	}

	for _, col := range rm.Columns {
		if rm.IsFlagField(col) {
			cleaned[col] = normalizeFlag(cleaned[col], col, log)
		}
	}

	if !truthy(cleaned[rm.PatientName]) {
		stem := filename
		if strings.HasSuffix(strings.ToLower(filename), ".pdf") {
			stem = filename[:len(filename)-4]
		}
		cleaned[rm.PatientName] = stem
		notes = append(notes, NoteNameNotFound)
		log.Info("patient name not found, using filename", "name", stem)
	}

	normalizeBloodGroup(cleaned, log)
	normalizeRhType(cleaned, log)

	if issues := QualityIssues(cleaned); len(issues) > 0 {
		cleaned[rm.DataQuality] = strings.Join(issues, " | ")
	} else {
		cleaned[rm.DataQuality] = nil
	}

	cleaned[rm.ExtractionNote] = nil
	for _, n := range notes {
		cleaned.AppendNote(n)
	}
	return cleaned
}

func coerceNumeric(value any, field string, log *logger_i.Logger) (any, string) {
	switch v := value.(type) {
	case nil:
		return nil, ""
	case float64:
		return v, ""
	case int:
		return float64(v), ""
	case int64:
		return float64(v), ""
	case string:
		if v == "" {
			return nil, ""
		}
		if m := embeddedFlagRegex.FindStringSubmatch(v); m != nil {
			if num, err := strconv.ParseFloat(m[1], 64); err == nil {
				flag := rm.FlagHigh
				if u := strings.ToUpper(m[2]); u == "L" || u == "LOW" {
					flag = rm.FlagLow
				}
				log.Warn("numeric field carried an embedded flag", "field", field, "raw", v)
				return num, flag
			}
		}
		num, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(num) || math.IsInf(num, 0) {
			log.Warn("expected numeric value, setting null", "field", field, "raw", v)
			return nil, ""
		}
		return num, ""
	}
	log.Warn("unexpected value type, setting null", "field", field, "type", fmt.Sprintf("%T", value))
	return nil, ""
}

func normalizeFlag(value any, field string, log *logger_i.Logger) any {
	if value == nil {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		log.Warn("flag is not a string, setting null", "field", field, "type", fmt.Sprintf("%T", value))
		return nil
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "H":
		return rm.FlagHigh
	case "LOW", "L":
		return rm.FlagLow
	case "":
		return nil
	}
	log.Warn("unexpected flag value, setting null", "field", field, "raw", s)
	return nil
}

func normalizeBloodGroup(cleaned rm.Record, log *logger_i.Logger) {
	raw := cleaned[rm.BloodGroup]
	if raw == nil {
		return
	}
	group := strings.ToUpper(strings.TrimSpace(fmt.Sprint(raw)))
	rh := ""
	for _, suffix := range []struct{ token, rh string }{
		{"+", "Positive"}, {"-", "Negative"}, {"POSITIVE", "Positive"}, {"NEGATIVE", "Negative"},
	} {
		if strings.HasSuffix(group, suffix.token) {
			rh = suffix.rh
			group = strings.TrimSpace(strings.TrimSuffix(group, suffix.token))
			break
		}
	}
	if _, ok := validBloodGroups[group]; !ok {
		log.Warn("invalid blood group, setting null", "raw", raw)
		cleaned[rm.BloodGroup] = nil
		return
	}
	cleaned[rm.BloodGroup] = group
	if rh != "" && !truthy(cleaned[rm.RhType]) {
		cleaned[rm.RhType] = rh
	}
}

func normalizeRhType(cleaned rm.Record, log *logger_i.Logger) {
	raw := cleaned[rm.RhType]
	if raw == nil {
		return
	}
	switch strings.ToUpper(strings.TrimSpace(fmt.Sprint(raw))) {
	case "+", "POSITIVE", "POS", "RH+", "RH POSITIVE":
		cleaned[rm.RhType] = "Positive"
	case "-", "NEGATIVE", "NEG", "RH-", "RH NEGATIVE":
		cleaned[rm.RhType] = "Negative"
	default:
		log.Warn("unrecognized Rh type, keeping as is", "raw", raw)
	}
}

// CountFields returns how many countable columns hold a value and how many do not.
// Flag and meta columns are not countable.
func CountFields(record rm.Record) (extracted int, null int) {
	for _, col := range rm.ValueFields {
		if record[col] != nil {
			extracted++
		} else {
			null++
		}
	}
	return extracted, null
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	case bool:
		return t
	}
	return true
}
