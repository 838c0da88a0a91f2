package reportModel

// Canonical column names. Order of Columns is the export order.
const (
	EmpCode     = "EmpCode"
	UHIDNo      = "UHIDNo"
	PatientName = "PatientName"
	Age         = "Age"
	Gender      = "Gender"
	Height      = "Height"
	Weight      = "Weight"
	BMI         = "BMI"
	BP          = "BP"
	Pulse       = "Pulse"
	Mobile      = "Mobile"

	BloodSugarRandom = "Blood_Sugar_Random"
	BloodGroup       = "Blood_Group"
	RhType           = "Rh_Type"

	Haemoglobin        = "Haemoglobin"
	RedBloodCellCount  = "Red_Blood_Cell_Count"
	Hct                = "Hct"
	MCV                = "MCV"
	MCH                = "MCH"
	MCHC               = "MCHC"
	RDWCV              = "RDW_CV"
	RDWSD              = "RDW_SD"
	TLC                = "TLC"
	NeutrophilPercent  = "Neutrophil_Percent"
	LymphocytePercent  = "Lymphocyte_Percent"
	EosinophilsPercent = "Eosinophils_Percent"
	MonocytesPercent   = "Monocytes_Percent"
	BasophilsPercent   = "Basophils_Percent"

	NeutrophilsAbsolute = "Neutrophils_Absolute"
	LymphocytesAbsolute = "Lymphocytes_Absolute"
	EosinophilsAbsolute = "Eosinophils_Absolute"
	MonocytesAbsolute   = "Monocytes_Absolute"
	BasophilsAbsolute   = "Basophils_Absolute"

	PlateletCount   = "Platelet_Count"
	MPV             = "MPV"
	ESR             = "ESR"
	SerumCreatinine = "Serum_Creatinine"
	SGOTAST         = "SGOT_AST"
	SGPTALT         = "SGPT_ALT"

	UrineColour          = "Urine_Colour"
	UrineTransparency    = "Urine_Transparency"
	UrineProteinAlbumin  = "Urine_Protein_Albumin"
	UrineGlucose         = "Urine_Glucose"
	UrineBilirubin       = "Urine_Bilirubin"
	UrineBlood           = "Urine_Blood"
	UrineCasts           = "Urine_Casts"
	UrineCrystals        = "Urine_Crystals"
	UrineRBC             = "Urine_RBC"
	UrinePH              = "Urine_PH"
	UrineSpecificGravity = "Urine_Specific_Gravity"

	AUDIOMETRY = "AUDIOMETRY"
	PFT        = "PFT"
	XRAY       = "XRAY"
	Remarks    = "Remarks"
	Suggestion = "Suggestion"

	ExtractionNote = "Extraction_Note"
	DataQuality    = "Data_Quality"

	FlagSuffix = "_Flag"
	FlagHigh   = "HIGH"
	FlagLow    = "LOW"

	GraphPresent = "PRESENT"
)

// FlagOf returns the flag column paired with field.
func FlagOf(field string) string {
	return field + FlagSuffix
}

var Columns = []string{
	EmpCode, UHIDNo, PatientName, Age, Gender, Height, Weight, BMI, BP, Pulse, Mobile,
	BloodSugarRandom, FlagOf(BloodSugarRandom),
	BloodGroup, RhType,
	Haemoglobin, FlagOf(Haemoglobin),
	RedBloodCellCount, FlagOf(RedBloodCellCount),
	Hct, FlagOf(Hct),
	MCV, FlagOf(MCV),
	MCH, FlagOf(MCH),
	MCHC, FlagOf(MCHC),
	RDWCV, FlagOf(RDWCV),
	RDWSD, FlagOf(RDWSD),
	TLC, FlagOf(TLC),
	NeutrophilPercent, FlagOf(NeutrophilPercent),
	LymphocytePercent, FlagOf(LymphocytePercent),
	EosinophilsPercent, FlagOf(EosinophilsPercent),
	MonocytesPercent, FlagOf(MonocytesPercent),
	BasophilsPercent, FlagOf(BasophilsPercent),
	NeutrophilsAbsolute, LymphocytesAbsolute, EosinophilsAbsolute, MonocytesAbsolute, BasophilsAbsolute,
	PlateletCount, FlagOf(PlateletCount),
	MPV, FlagOf(MPV),
	ESR, FlagOf(ESR),
	SerumCreatinine, FlagOf(SerumCreatinine),
	SGOTAST, FlagOf(SGOTAST),
	SGPTALT, FlagOf(SGPTALT),
	UrineColour, UrineTransparency, UrineProteinAlbumin, UrineGlucose, UrineBilirubin,
	UrineBlood, UrineCasts, UrineCrystals, UrineRBC, UrinePH, UrineSpecificGravity,
	AUDIOMETRY, PFT, XRAY, Remarks, Suggestion,
	ExtractionNote, DataQuality,
}

var (
	columnSet    = toSet(Columns)
	flagFieldSet = map[string]struct{}{}

	// ValueFields is every column a tier can fill: no flags, no meta columns.
	ValueFields []string
)

func init() {
	for _, c := range Columns {
		if IsFlagName(c) {
			flagFieldSet[c] = struct{}{}
			continue
		}
		if c == ExtractionNote || c == DataQuality {
			continue
		}
		ValueFields = append(ValueFields, c)
	}
}

func IsColumn(name string) bool {
	_, ok := columnSet[name]
	return ok
}

func IsFlagName(name string) bool {
	return len(name) > len(FlagSuffix) && name[len(name)-len(FlagSuffix):] == FlagSuffix
}

// IsFlagField reports whether name is one of the known flag columns.
func IsFlagField(name string) bool {
	_, ok := flagFieldSet[name]
	return ok
}

var NumericFields = toSet([]string{
	Age, Height, Weight, BMI, Pulse,
	Haemoglobin, RedBloodCellCount, Hct, MCV, MCH, MCHC, RDWCV, RDWSD, TLC,
	NeutrophilPercent, LymphocytePercent, EosinophilsPercent, MonocytesPercent, BasophilsPercent,
	NeutrophilsAbsolute, LymphocytesAbsolute, EosinophilsAbsolute, MonocytesAbsolute, BasophilsAbsolute,
	PlateletCount, MPV, ESR, BloodSugarRandom, SerumCreatinine, SGOTAST, SGPTALT,
	UrinePH, UrineSpecificGravity,
})

// NarrativeFields accumulate distinct values instead of keeping the first one.
var NarrativeFields = toSet([]string{
	XRAY, PFT, AUDIOMETRY, Suggestion, Remarks, Mobile,
	UrineColour, UrineTransparency, UrinePH, UrineProteinAlbumin, UrineGlucose,
	UrineBilirubin, UrineBlood, UrineRBC, UrineCasts, UrineCrystals, UrineSpecificGravity,
})

// AlwaysKeepFields survive text-chunk pruning regardless of page content.
var AlwaysKeepFields = toSet([]string{
	XRAY, PFT, AUDIOMETRY, Remarks, Suggestion, PatientName, Mobile, EmpCode, UHIDNo,
})

// UnreportedFields are never listed as unrecovered; they are often legitimately absent.
var UnreportedFields = toSet([]string{Mobile, Remarks, Suggestion, EmpCode, UHIDNo})

var CriticalFields = toSet([]string{Haemoglobin, BloodGroup, SGOTAST, SGPTALT, SerumCreatinine})

var DifferentialFields = []string{
	NeutrophilPercent, LymphocytePercent, EosinophilsPercent, MonocytesPercent, BasophilsPercent,
}

// FieldAliases are lowercase substrings checked against lowercased page text.
// Padded aliases keep short tokens from matching inside other words.
var FieldAliases = map[string][]string{
	Age:                  {"age"},
	Gender:               {"gender", "sex"},
	Height:               {"height", " ht "},
	Weight:               {"weight", " wt "},
	BMI:                  {"bmi"},
	BP:                   {"bp", "blood pressure"},
	Pulse:                {"pulse", " pr "},
	BloodGroup:           {"blood group", "abo group", "blood grp"},
	RhType:               {"rh ", "rhesus"},
	Haemoglobin:          {"haemoglobin", "hemoglobin", "hb%", " hb "},
	RedBloodCellCount:    {"rbc", "r.b.c", "red blood cell"},
	Hct:                  {"hct", "pcv", "p.c.v", "haematocrit", "hematocrit"},
	MCV:                  {"mcv"},
	MCH:                  {" mch "},
	MCHC:                 {"mchc"},
	RDWCV:                {"rdw"},
	RDWSD:                {"rdw"},
	TLC:                  {"tlc", "wbc", "leucocyte", "leukocyte", "total wbc"},
	NeutrophilPercent:    {"neutrophil", "neut"},
	LymphocytePercent:    {"lymphocyte", "lymph"},
	EosinophilsPercent:   {"eosinophil", "eos"},
	MonocytesPercent:     {"monocyte", "mono"},
	BasophilsPercent:     {"basophil", "baso"},
	NeutrophilsAbsolute:  {"neutrophil", "neut"},
	LymphocytesAbsolute:  {"lymphocyte", "lymph"},
	EosinophilsAbsolute:  {"eosinophil"},
	MonocytesAbsolute:    {"monocyte"},
	BasophilsAbsolute:    {"basophil"},
	PlateletCount:        {"platelet", "plt"},
	MPV:                  {"mpv"},
	ESR:                  {"esr", "e.s.r", "erythrocyte sedimentation"},
	BloodSugarRandom:     {"blood sugar", "blood glucose", "bsr", " rbs "},
	SerumCreatinine:      {"creatinine", "s.creatinine"},
	SGOTAST:              {"sgot", "s.g.o.t", " ast "},
	SGPTALT:              {"sgpt", "s.g.p.t", " alt "},
	UrineColour:          {"colour", "color", "urine"},
	UrineTransparency:    {"transparency", "urine"},
	UrineProteinAlbumin:  {"protein", "albumin"},
	UrineGlucose:         {"glucose", "urine"},
	UrineBilirubin:       {"bilirubin"},
	UrineBlood:           {"urine blood", "blood urine"},
	UrineRBC:             {"urine rbc", "rbc urine"},
	UrineCasts:           {"casts"},
	UrineCrystals:        {"crystals"},
	UrinePH:              {"urine ph", " ph "},
	UrineSpecificGravity: {"specific gravity", "sp. gravity", "sp.gr"},
}

// Range is an inclusive plausibility window.
type Range struct {
	Lo, Hi float64
}

var PlausibleRanges = map[string]Range{
	Haemoglobin:        {3, 25},
	RedBloodCellCount:  {1, 10},
	Hct:                {5, 65},
	MCV:                {50, 130},
	MCH:                {10, 50},
	MCHC:               {20, 40},
	TLC:                {0.5, 100},
	PlateletCount:      {10, 1500},
	NeutrophilPercent:  {0, 100},
	LymphocytePercent:  {0, 100},
	EosinophilsPercent: {0, 60},
	MonocytesPercent:   {0, 30},
	BasophilsPercent:   {0, 10},
	ESR:                {0, 150},
	BloodSugarRandom:   {20, 700},
	SerumCreatinine:    {0.1, 20},
	SGOTAST:            {5, 2000},
	SGPTALT:            {5, 2000},
	Age:                {1, 120},
	BMI:                {10, 70},
	Pulse:              {30, 220},
}

// RangeOrder fixes the order in which plausibility issues are reported.
var RangeOrder = []string{
	Haemoglobin, RedBloodCellCount, Hct, MCV, MCH, MCHC, TLC, PlateletCount,
	NeutrophilPercent, LymphocytePercent, EosinophilsPercent, MonocytesPercent, BasophilsPercent,
	ESR, BloodSugarRandom, SerumCreatinine, SGOTAST, SGPTALT, Age, BMI, Pulse,
}

var displayNames = map[string]string{
	UHIDNo:               "UHIDNo.",
	BloodSugarRandom:     "Blood Sugar Random",
	BloodGroup:           "Blood Group",
	RhType:               "Rh Type",
	RedBloodCellCount:    "Red Blood Cell Count",
	RDWCV:                "RDW - CV",
	RDWSD:                "RDW - SD",
	NeutrophilPercent:    "Neutrophil %",
	LymphocytePercent:    "Lymphocyte %",
	EosinophilsPercent:   "Eosinophils %",
	MonocytesPercent:     "Monocytes %",
	BasophilsPercent:     "Basophils %",
	NeutrophilsAbsolute:  "Neutrophils (Abs)",
	LymphocytesAbsolute:  "Lymphocytes (Abs)",
	EosinophilsAbsolute:  "Eosinophils (Abs)",
	MonocytesAbsolute:    "Monocytes (Abs)",
	BasophilsAbsolute:    "Basophils (Abs)",
	PlateletCount:        "Platelet Count",
	SerumCreatinine:      "Serum Creatinine",
	SGOTAST:              "SGOT / AST",
	SGPTALT:              "SGPT / ALT",
	UrineColour:          "Colour",
	UrineTransparency:    "Transparency",
	UrineProteinAlbumin:  "Protein (Albumin)",
	UrineGlucose:         "Glucose",
	UrineBilirubin:       "Bilirubin",
	UrineBlood:           "Blood",
	UrineCasts:           "Casts",
	UrineCrystals:        "Crystals",
	UrineRBC:             "RBC",
	UrinePH:              "PH",
	UrineSpecificGravity: "Specific Gravity",
	XRAY:                 "X-RAY",
	ExtractionNote:       "Extraction Note",
	DataQuality:          "Data Quality",
}

// DisplayName is the workbook header for a column.
func DisplayName(column string) string {
	if name, ok := displayNames[column]; ok {
		return name
	}
	return column
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func In(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}
