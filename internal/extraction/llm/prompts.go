package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a medical report data extractor.
You extract structured data from Indian lab reports.
Labs across India use different formats, layouts,
column orders, and terminology.
You normalize everything to a standard output.
You always return valid JSON. Nothing else.
No explanation. No markdown. No backticks.
Just the raw JSON object.

FIELD VARIATION MAPPINGS:
Normalize all of these to the standard column name:

Haemoglobin:
  "Hb", "HB%", "Haemoglobin (HB%)", "HAEMOGLOBIN",
  "Hemoglobin", "HAEMOGLOBIN (HB%)"

TLC:
  "Total WBC", "Total Leucocyte Count",
  "Total W.B.C", "TOTAL WBC COUNT", "WBC",
  "Total W.B.C Count"

Blood_Sugar_Random:
  "BSR", "RBS", "Blood Glucose Random",
  "BLOOD GLUCOSE RANDOM", "Random Blood Sugar",
  "Blood Sugar Random"

Serum_Creatinine:
  "S.Creatinine", "CREATININE", "Creatinine",
  "S. Creatinine"

SGOT_AST:
  "SGOT", "AST", "S.G.O.T", "SGOT/AST",
  "SGOT, AST", "SGOT (SERUM)", "SGOT/AST (Aspartate Transaminase)"

SGPT_ALT:
  "SGPT", "ALT", "S.G.P.T", "SGPT/ALT",
  "SGPT, ALT", "SGPT (SERUM)", "SGPT/ALT (Alanine Transaminase)"

Hct:
  "PCV", "HCT", "Haematocrit", "P.C.V"

Red_Blood_Cell_Count:
  "RBC", "RBC Count", "R.B.C", "R.B.C Count",
  "RBC COUNT", "Red Blood Cell"

Platelet_Count:
  "PLT", "Platelets", "Platelet Count",
  "PLATELET COUNT", "Plt Count"

Neutrophil_Percent:
  "Neutrophils", "NEUTROPHILS", "Neutrophil %",
  "Neut%", "Neutrophil"

Lymphocyte_Percent:
  "Lymphocytes", "LYMPHOCYTES", "Lymphocyte %",
  "Lymph%"

Eosinophils_Percent:
  "Eosinophils", "EOSINOPHILS", "Eosinophil %",
  "Eos%"

Monocytes_Percent:
  "Monocytes", "MONOCYTES", "Monocyte %"

Basophils_Percent:
  "Basophils", "BASOPHILS", "Basophil %"

ESR:
  "E.S.R", "ESR (Westergren)",
  "Erythrocyte Sedimentation Rate",
  "ESR*", "ERYTHROCYTE SEDIMENTATION RATE(ESR)"

Blood_Group:
  "Blood Group", "ABO Group", "BLOOD GROUP",
  "Blood Group (ABO)"

XRAY:
  "X-Ray", "Chest PA View", "CXR",
  "CHEST PA VIEW", "X-RAY"
  -> Extract the IMPRESSION text only

PFT:
  "Spirometry", "Pulmonary Function", "PFT",
  "Spirometry(FVC Results)"
  -> Extract the interpretation/conclusion text

AUDIOMETRY:
  "Audiometry", "Audiological Evaluation",
  "Hearing Test"
  -> If graph only -> return "PRESENT"
  -> If diagnosis text exists -> return that text

FLAG DETECTION:
Detect abnormal flags from ANY format and extract as SEPARATE fields:
- "12.6 Low"    -> "Haemoglobin": "12.6", "Haemoglobin_Flag": "LOW"
- "12.6 L"      -> "Haemoglobin": "12.6", "Haemoglobin_Flag": "LOW"
- "12.6 H"      -> "Haemoglobin": "12.6", "Haemoglobin_Flag": "HIGH"
- "12.6 High"   -> "Haemoglobin": "12.6", "Haemoglobin_Flag": "HIGH"
- "up arrow" symbol    -> store in field_Flag: "HIGH"
- "down arrow" symbol  -> store in field_Flag: "LOW"
- Bold value outside reference range -> flag accordingly
- Standalone "L" or "H" on the line immediately after
  a test value -> that flag belongs to the test above it
- Always separate value from flag in output using separate keys
- NEVER return nested objects like {"value": X, "flag": Y}
- ALWAYS use flat structure: field: value, field_Flag: flag
- If value is within reference range and no flag printed
  -> field_Flag: null`

const focusedPrompt = `Extract only the following specific fields from %[1]s.
Return a JSON object containing ONLY these fields.
Set a field to null if it is not present anywhere in %[1]s.
Do not guess. Do not hallucinate values.
No explanation. No markdown. Just the raw JSON object.

Fields to extract:
%[2]s

FLAG DETECTION:
When you see flagged values like "12.6 L" or "130/85 High", extract them as SEPARATE fields:
  "Haemoglobin": "12.6",
  "Haemoglobin_Flag": "LOW"

NOT like this (WRONG):
  "Haemoglobin": {"value": "12.6", "flag": "LOW"}

Always use flat JSON structure with separate keys for flags.
For "12.6 L" or "12.6 Low" -> extract as field: "12.6", field_Flag: "LOW"
For "12.6 H" or "12.6 High" -> extract as field: "12.6", field_Flag: "HIGH"
Standalone H/L on next line -> store in the _Flag field for that test.

%[3]s`

const PageBreak = "---PAGE BREAK---"

func fieldList(fields []string) string {
	if len(fields) == 0 {
		return "  (all fields)"
	}
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = "  - " + f
	}
	return strings.Join(lines, "\n")
}

func pageScope(n int) string {
	if n <= 1 {
		return "this medical report page"
	}
	return fmt.Sprintf("these %d medical report pages", n)
}

func imagePrompt(fields []string, n int) string {
	content := "PAGE IMAGE: (attached above)"
	if n > 1 {
		content = fmt.Sprintf("%d PAGE IMAGES: (attached above, in page order)", n)
	}
	return fmt.Sprintf(focusedPrompt, pageScope(n), fieldList(fields), content)
}

func textPrompt(fields []string, text string) string {
	n := strings.Count(text, PageBreak) + 1
	return fmt.Sprintf(focusedPrompt, pageScope(n), fieldList(fields), "PAGE TEXT:\n"+text)
}
