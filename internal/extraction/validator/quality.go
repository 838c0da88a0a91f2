package validator

import (
	"fmt"
	"math"
	"strconv"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

// QualityIssues runs the clinical plausibility checks on a cleaned record.
func QualityIssues(record rm.Record) []string {
	var issues []string

	for _, field := range rm.RangeOrder {
		v, ok := record.Float(field)
		if !ok {
			continue
		}
		r := rm.PlausibleRanges[field]
		if v < r.Lo || v > r.Hi {
			issues = append(issues, fmt.Sprintf("%s=%s outside expected %s-%s",
				field, formatFloat(v), formatFloat(r.Lo), formatFloat(r.Hi)))
		}
	}

	var present int
	var sum float64
	for _, field := range rm.DifferentialFields {
		if v, ok := record.Float(field); ok {
			present++
			sum += v
		}
	}
	if present >= 3 && math.Abs(sum-100) > differentialTolerance {
		issues = append(issues, fmt.Sprintf("Differential sum=%.1f%% (expected ~100%%)", sum))
	}

	if truthy(record[rm.BloodGroup]) && !truthy(record[rm.RhType]) {
		issues = append(issues, "Blood_Group present but Rh_Type missing")
	}

	h, hOK := record.Float(rm.Height)
	w, wOK := record.Float(rm.Weight)
	bmi, bOK := record.Float(rm.BMI)
	if hOK && wOK && bOK && h != 0 && w != 0 && bmi != 0 {
		meters := h / 100
		calculated := w / (meters * meters)
		if math.Abs(calculated-bmi) > bmiTolerance {
			issues = append(issues, fmt.Sprintf("BMI=%s vs calculated=%.1f from H=%s/W=%s",
				formatFloat(bmi), calculated, formatFloat(h), formatFloat(w)))
		}
	}
	return issues
}

// formatFloat renders whole numbers with a trailing ".0" so reports read
// 3.0-25.0 rather than 3-25.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == math.Trunc(v) && math.Abs(v) < 1e16 {
		return s + ".0"
	}
	return s
}
