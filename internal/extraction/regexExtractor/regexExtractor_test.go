package regexExtractor

import (
	"testing"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

func TestExtract_BasicLabPanel(t *testing.T) {
	result, count := Extract("Haemoglobin: 12.6\nTLC: 8200\nESR: 10")
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	want := map[string]float64{rm.Haemoglobin: 12.6, rm.TLC: 8200, rm.ESR: 10}
	for field, v := range want {
		if got, _ := result.Float(field); got != v {
			t.Errorf("%s = %v, want %v", field, result[field], v)
		}
	}
	for _, f := range rm.ValueFields {
		if _, ok := result[f]; !ok {
			t.Errorf("field %s missing from result", f)
		}
	}
}

func TestExtract_Flags(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		field string
		want  any
	}{
		{"inline letter", "Haemoglobin 10.2 L g/dl", rm.Haemoglobin, rm.FlagLow},
		{"inline word", "Platelet Count: 450 High", rm.PlateletCount, rm.FlagHigh},
		{"inline arrow", "MCV 130 ↑", rm.MCV, rm.FlagHigh},
		{"next line", "ESR: 40\nH\nTLC 5", rm.ESR, rm.FlagHigh},
		{"unit is not a flag", "Haemoglobin 13.5 Hb units", rm.Haemoglobin, nil},
		{"no flag", "Haemoglobin: 13.5 g/dl", rm.Haemoglobin, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _ := Extract(tt.text)
			if got := result[rm.FlagOf(tt.field)]; got != tt.want {
				t.Errorf("flag = %v, want %v", got, tt.want)
			}
			if result[tt.field] == nil {
				t.Errorf("value for %s should be set", tt.field)
			}
		})
	}
}

func TestExtract_PatientIdentity(t *testing.T) {
	text := "Patient Name: Ramesh Kumar\nAge: 45 Yrs\nSex: M\nBP: 120 / 80\n" +
		"Blood Group: B Positive\nEmp Code: E-1042\nUHID No: UH/99812"
	result, _ := Extract(text)

	checks := map[string]any{
		rm.PatientName: "Ramesh Kumar",
		rm.Age:         float64(45),
		rm.Gender:      "Male",
		rm.BP:          "120/80",
		rm.BloodGroup:  "B",
		rm.RhType:      "Positive",
		rm.EmpCode:     "E-1042",
		rm.UHIDNo:      "UH/99812",
	}
	for field, want := range checks {
		if got := result[field]; got != want {
			t.Errorf("%s = %v, want %v", field, got, want)
		}
	}
}

func TestExtract_NameEdgeCases(t *testing.T) {
	t.Run("stops before other label", func(t *testing.T) {
		result, _ := Extract("Name: Sita Devi Age: 30")
		if got := result[rm.PatientName]; got != "Sita Devi" {
			t.Errorf("PatientName = %v", got)
		}
	})
	t.Run("rejects report word", func(t *testing.T) {
		result, _ := Extract("Name: Report\n")
		if result[rm.PatientName] != nil {
			t.Errorf("PatientName = %v, want nil", result[rm.PatientName])
		}
	})
	t.Run("lowercase value ignored", func(t *testing.T) {
		result, _ := Extract("Name: unknown\n")
		if result[rm.PatientName] != nil {
			t.Errorf("PatientName = %v, want nil", result[rm.PatientName])
		}
	})
}

func TestExtract_StandaloneRh(t *testing.T) {
	result, _ := Extract("Blood Group: O\nRh Factor: Negative")
	if result[rm.BloodGroup] != "O" || result[rm.RhType] != "Negative" {
		t.Errorf("group/rh = %v/%v", result[rm.BloodGroup], result[rm.RhType])
	}
}

func TestExtract_WordBoundaries(t *testing.T) {
	result, _ := Extract("Page 2 of 3\nOverweight 80")
	if result[rm.Age] != nil {
		t.Errorf("Age matched inside Page: %v", result[rm.Age])
	}
	if result[rm.Weight] != nil {
		t.Errorf("Weight matched inside Overweight: %v", result[rm.Weight])
	}
}

func TestExtract_EmptyText(t *testing.T) {
	result, count := Extract("")
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	if len(result) == 0 {
		t.Error("result should still carry every column")
	}
}

func TestNormalizers(t *testing.T) {
	if NormalizeFlag("↓") != rm.FlagLow || NormalizeFlag("high") != rm.FlagHigh || NormalizeFlag("x") != "" {
		t.Error("NormalizeFlag mapping mismatch")
	}
	if NormalizeRh("+") != "Positive" || NormalizeRh("neg") != "Negative" || NormalizeRh("?") != "" {
		t.Error("NormalizeRh mapping mismatch")
	}
}
