package regexExtractor

import (
	"regexp"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

const (
	number    = `(\d+(?:\.\d+)?)`
	separator = `\s*[:\-]?\s*`
)

type fieldPattern struct {
	field string
	re    *regexp.Regexp
}

func numeric(field, label string) fieldPattern {
	return fieldPattern{field: field, re: regexp.MustCompile(`(?i)` + label + separator + number)}
}

// labPatterns carry a paired flag column. Order matters: earlier patterns
// are tried first but every field is searched independently.
var labPatterns = []fieldPattern{
	numeric(rm.Haemoglobin, `(?:Haemoglobin|Hemoglobin|HAEMOGLOBIN|HB%?|Hb)`),
	numeric(rm.RedBloodCellCount, `(?:RBC(?:\s+Count)?|R\.?B\.?C\.?(?:\s+Count)?|Red\s+Blood\s+Cell(?:\s+Count)?)`),
	numeric(rm.Hct, `(?:Haematocrit|Hematocrit|HCT|PCV|P\.?C\.?V\.?)`),
	numeric(rm.MCV, `MCV`),
	numeric(rm.MCH, `\bMCH\b`),
	numeric(rm.MCHC, `MCHC`),
	numeric(rm.RDWCV, `RDW[-\s]?CV`),
	numeric(rm.RDWSD, `RDW[-\s]?SD`),
	numeric(rm.TLC, `(?:Total\s+(?:Leucocyte|Leukocyte|WBC)\s+Count|TLC|Total\s+W\.?B\.?C\.?(?:\s+Count)?|TOTAL\s+WBC(?:\s+COUNT)?)`),
	numeric(rm.NeutrophilPercent, `(?:Neutrophils?|NEUTROPHILS?|Neut%?)`),
	numeric(rm.LymphocytePercent, `(?:Lymphocytes?|LYMPHOCYTES?|Lymph%?)`),
	numeric(rm.EosinophilsPercent, `(?:Eosinophils?|EOSINOPHILS?|Eos%?)`),
	numeric(rm.MonocytesPercent, `(?:Monocytes?|MONOCYTES?|Mono%?)`),
	numeric(rm.BasophilsPercent, `(?:Basophils?|BASOPHILS?|Baso%?)`),
	numeric(rm.PlateletCount, `(?:Platelet(?:\s+Count)?|PLT|Plt(?:\s+Count)?|PLATELET(?:\s+COUNT)?)`),
	numeric(rm.MPV, `\bMPV\b`),
	numeric(rm.ESR, `(?:E\.?S\.?R\.?(?:\*)?|Erythrocyte\s+Sedimentation\s+Rate(?:\s*\(ESR\))?)`),
	numeric(rm.BloodSugarRandom, `(?:Blood\s+(?:Sugar|Glucose)\s+Random|Random\s+Blood\s+(?:Sugar|Glucose)|BSR|RBS|BLOOD\s+GLUCOSE\s+RANDOM)`),
	numeric(rm.SerumCreatinine, `(?:S\.?\s*Creatinine|Serum\s+Creatinine|CREATININE)`),
	numeric(rm.SGOTAST, `(?:SGOT(?:/AST)?|S\.?G\.?O\.?T\.?(?:[,/]\s*AST)?|AST)`),
	numeric(rm.SGPTALT, `(?:SGPT(?:/ALT)?|S\.?G\.?P\.?T\.?(?:[,/]\s*ALT)?|ALT)`),
}

// absolutePatterns have no flag column.
var absolutePatterns = []fieldPattern{
	numeric(rm.NeutrophilsAbsolute, `Neutrophils?\s+(?:Absolute|Abs\.?)`),
	numeric(rm.LymphocytesAbsolute, `Lymphocytes?\s+(?:Absolute|Abs\.?)`),
	numeric(rm.EosinophilsAbsolute, `Eosinophils?\s+(?:Absolute|Abs\.?)`),
	numeric(rm.MonocytesAbsolute, `Monocytes?\s+(?:Absolute|Abs\.?)`),
	numeric(rm.BasophilsAbsolute, `Basophils?\s+(?:Absolute|Abs\.?)`),
}

// Word boundaries keep "Page 2" and "Overweight 80" from matching.
var patientPatterns = []fieldPattern{
	{field: rm.Age, re: regexp.MustCompile(`(?i)\bAge` + separator + `(\d+)\s*(?:Y(?:rs?|ears?)?)?`)},
	numeric(rm.Height, `\b(?:Height|Ht\.?)`),
	numeric(rm.Weight, `\b(?:Weight|Wt\.?)`),
	numeric(rm.BMI, `BMI`),
	{field: rm.Pulse, re: regexp.MustCompile(`(?i)(?:Pulse(?:\s+Rate)?|PR)` + separator + `(\d+)`)},
}

var (
	bpPattern = regexp.MustCompile(`(?i)(?:BP|Blood\s+Pressure)` + separator + `(\d{2,3}\s*/\s*\d{2,3})`)

	// Case sensitive. The capture runs greedy here and the terminator is
	// located afterwards, see findName.
	namePattern  = regexp.MustCompile(`(?m)(?:Patient\s+Name|Name\s+of\s+Patient|Patient|Name)\s*[:\-]\s*([A-Z][A-Za-z\s\.]{2,50})`)
	nameRejected = regexp.MustCompile(`(?i)^(Report|Lab|Date|Test)$`)

	genderPattern     = regexp.MustCompile(`(?i)(?:Gender|Sex)` + separator + `(Male|Female|M|F|MALE|FEMALE)`)
	bloodGroupPattern = regexp.MustCompile(`(?i)(?:Blood\s+Group(?:\s*\(ABO\))?|ABO\s+Group|BLOOD\s+GROUP)` + separator + `(AB|A|B|O)(?:\s*(Positive|\+|Negative|-))?`)
	rhPattern         = regexp.MustCompile(`(?i)(?:Rh(?:\s+(?:Factor|Type))?|RHESUS)` + separator + `(Positive|\+|Negative|-)`)
	empCodePattern    = regexp.MustCompile(`(?i)(?:Emp(?:loyee)?(?:\s+(?:Code|ID|No\.?))?|EMP(?:CODE|ID|NO)?)` + separator + `([A-Za-z0-9\-_/]{2,20})`)
	uhidPattern       = regexp.MustCompile(`(?i)(?:UHID(?:\s*(?:No\.?|Number))?|U\.?H\.?I\.?D\.?)` + separator + `([A-Za-z0-9\-_/]{2,20})`)

	inlineFlagPattern     = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+(high|low|h|l|↑|↓)`)
	standaloneFlagPattern = regexp.MustCompile(`(?i)^(H|L|High|Low|↑|↓)$`)
)

var nameTerminators = []string{"\n", "\r", "Age", "DOB", "Sex", "Gender", "Mr.", "Mrs."}
