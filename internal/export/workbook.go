// Package export renders extracted records as an xlsx workbook.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"github.com/xuri/excelize/v2"
)

const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"

	fontName = "Calibri"
)

var logger = logger_i.NewLogger("export")

// attachment columns show whether the test was done, not its content
var attachmentFields = map[string]struct{}{rm.XRAY: {}, rm.PFT: {}, rm.AUDIOMETRY: {}}

var multiValueFields = []string{rm.Mobile, rm.UHIDNo, rm.EmpCode, rm.XRAY, rm.PFT, rm.AUDIOMETRY, rm.Remarks, rm.Suggestion}

var wrapFields = map[string]struct{}{rm.Remarks: {}, rm.Suggestion: {}, rm.ExtractionNote: {}, rm.DataQuality: {}}

var fixedWidths = map[string]float64{
	rm.EmpCode:        12,
	rm.UHIDNo:         12,
	rm.PatientName:    22,
	rm.Age:            6,
	rm.Gender:         8,
	rm.Height:         8,
	rm.Weight:         8,
	rm.BMI:            7,
	rm.BP:             10,
	rm.Pulse:          7,
	rm.Mobile:         14,
	rm.BloodGroup:     10,
	rm.RhType:         10,
	rm.XRAY:           15,
	rm.PFT:            15,
	rm.AUDIOMETRY:     15,
	rm.Remarks:        30,
	rm.Suggestion:     30,
	rm.ExtractionNote: 35,
	rm.DataQuality:    35,
}

var summaryHeaders = []string{
	"Filename", "PatientName", "Status", "Fields_Extracted", "Fields_Null", "Processing_Time_Seconds",
	"Error_Notes", "Pages_Regex_Handled", "Pages_OCR_Handled", "Pages_AI_Handled", "Pages_Graph_Detected",
	"Unrecovered_Fields",
}

var knownTokens = map[string]struct{}{
	"NORMAL": {}, "ABNORMAL": {}, "NAD": {}, "WNL": {}, "NIL": {}, "ABSENT": {}, "PRESENT": {},
}

// OutputColumns is every column written to the results sheet: flags are folded into their values.
func OutputColumns() []string {
	var cols []string
	for _, c := range rm.Columns {
		if !rm.IsFlagName(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// Workbook builds the results sheet from records and the summary sheet from files.
// nil records are skipped.
func Workbook(records []rm.Record, files []jobModel.FileJob) ([]byte, error) {
	start := time.Now()
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return nil, err
	}
	rows, err := writeResults(f, records)
	if err != nil {
		return nil, fmt.Errorf("results sheet: %w", err)
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return nil, err
	}
	if err := writeSummary(f, files); err != nil {
		return nil, fmt.Errorf("summary sheet: %w", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export.xlsx.ok", "rows", rows, "elapsed_ms", time.Since(start).Milliseconds())
	return buf.Bytes(), nil
}

func writeResults(f *excelize.File, records []rm.Record) (int, error) {
	cols := OutputColumns()
	headers := make([]any, 0, len(cols)+1)
	headers = append(headers, "S.No")
	for _, c := range cols {
		headers = append(headers, rm.DisplayName(c))
	}
	if err := writeHeader(f, ResultsSheet, headers); err != nil {
		return 0, err
	}

	body, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Size: 10},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	})
	if err != nil {
		return 0, err
	}
	wrap, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Size: 10},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return 0, err
	}
	center, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Size: 10},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return 0, err
	}

	row := 1
	for _, raw := range records {
		if raw == nil {
			continue
		}
		row++
		record := normalizeRecord(raw)
		values := make([]any, 0, len(cols)+1)
		values = append(values, row-1)
		for _, c := range cols {
			values = append(values, displayValue(record, c))
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(ResultsSheet, cell, &values); err != nil {
			return 0, err
		}
	}

	last, _ := excelize.ColumnNumberToName(len(cols) + 1)
	if row > 1 {
		lastCell := fmt.Sprintf("%s%d", last, row)
		if err := f.SetCellStyle(ResultsSheet, "B2", lastCell, body); err != nil {
			return 0, err
		}
		if err := f.SetCellStyle(ResultsSheet, "A2", fmt.Sprintf("A%d", row), center); err != nil {
			return 0, err
		}
	}

	_ = f.SetColWidth(ResultsSheet, "A", "A", 6)
	for i, c := range cols {
		name, _ := excelize.ColumnNumberToName(i + 2)
		_ = f.SetColWidth(ResultsSheet, name, name, columnWidth(c))
		if _, ok := wrapFields[c]; ok && row > 1 {
			_ = f.SetCellStyle(ResultsSheet, name+"2", fmt.Sprintf("%s%d", name, row), wrap)
		}
	}
	return row - 1, nil
}

func writeSummary(f *excelize.File, files []jobModel.FileJob) error {
	headers := make([]any, len(summaryHeaders))
	for i, h := range summaryHeaders {
		headers[i] = h
	}
	if err := writeHeader(f, SummarySheet, headers); err != nil {
		return err
	}
	for i, file := range files {
		if file.Filename == "" {
			continue
		}
		values := []any{
			file.Filename,
			file.PatientName,
			string(file.Status),
			file.FieldsExtracted,
			file.FieldsNull,
			file.ProcessingTime,
			file.ErrorNotes,
			file.PagesRegexHandled,
			file.PagesOCRHandled,
			file.PagesAIHandled,
			file.PagesGraph,
			strings.Join(file.UnrecoveredFields, ", "),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SummarySheet, cell, &values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(SummarySheet, "A", "B", 28)
	_ = f.SetColWidth(SummarySheet, "C", "F", 14)
	_ = f.SetColWidth(SummarySheet, "G", "G", 48)
	_ = f.SetColWidth(SummarySheet, "H", "K", 14)
	_ = f.SetColWidth(SummarySheet, "L", "L", 48)
	return nil
}

// writeHeader writes a bold frozen header row with an autofilter over it.
func writeHeader(f *excelize.File, sheet string, headers []any) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: fontName, Size: 10, Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(headers))
	if err := f.SetCellStyle(sheet, "A1", last+"1", style); err != nil {
		return err
	}
	_ = f.SetRowHeight(sheet, 1, 30)
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	return f.AutoFilter(sheet, "A1:"+last+"1", nil)
}

func columnWidth(col string) float64 {
	if w, ok := fixedWidths[col]; ok {
		return w
	}
	return float64(max(len(rm.DisplayName(col))+2, 10))
}

func displayValue(record rm.Record, col string) any {
	value := record[col]
	if _, ok := attachmentFields[col]; ok {
		if s := strings.TrimSpace(formatValue(value)); s != "" {
			return "Attached"
		}
		return "Not Attached"
	}
	flag := rm.FlagOf(col)
	if rm.IsFlagField(flag) {
		if value == nil {
			return nil
		}
		s := formatValue(value)
		switch record[flag] {
		case rm.FlagHigh:
			return s + " (H)"
		case rm.FlagLow:
			return s + " (L)"
		}
		return s
	}
	if value == nil {
		return nil
	}
	return formatValue(value)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}

func normalizeRecord(record rm.Record) rm.Record {
	out := record.Clone()
	for _, field := range multiValueFields {
		if s, ok := out[field].(string); ok {
			if v, ok := firstUniqueValue(s); ok {
				out[field] = v
			} else {
				out[field] = nil
			}
		}
	}
	return out
}

// firstUniqueValue cleans each " | " part and keeps the first non-empty one.
func firstUniqueValue(value string) (string, bool) {
	for _, part := range strings.Split(value, "|") {
		if cleaned := normalizeSpelling(strings.TrimSpace(part)); cleaned != "" {
			return cleaned, true
		}
	}
	return "", false
}

func normalizeSpelling(text string) string {
	text = strings.TrimRight(text, ".,;:!?")
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	if _, ok := knownTokens[strings.ToUpper(text)]; ok {
		return strings.ToUpper(text)
	}
	return titleCase(text)
}

// titleCase upper-cases the first letter of every run of letters and lower-cases the rest.
func titleCase(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	prevLetter := false
	for _, r := range text {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
