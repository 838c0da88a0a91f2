package regexExtractor

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

// HandledThreshold is the match count at which a page is owned by this tier.
const HandledThreshold = 3

// Extract runs every pattern over text. The returned record carries every
// canonical column, nil when unmatched, plus the number of value matches.
func Extract(text string) (rm.Record, int) {
	result := rm.NewRecord()
	delete(result, rm.ExtractionNote)
	delete(result, rm.DataQuality)

	for _, p := range labPatterns {
		value, flag, ok := valueAndFlag(text, p)
		if !ok {
			continue
		}
		result[p.field] = value
		if flag != "" {
			result[rm.FlagOf(p.field)] = flag
		}
	}
	for _, p := range absolutePatterns {
		if value, _, ok := valueAndFlag(text, p); ok {
			result[p.field] = value
		}
	}
	for _, p := range patientPatterns {
		if value, _, ok := valueAndFlag(text, p); ok {
			result[p.field] = value
		}
	}

	if m := bpPattern.FindStringSubmatch(text); m != nil {
		result[rm.BP] = strings.ReplaceAll(m[1], " ", "")
	}
	if name, ok := findName(text); ok {
		result[rm.PatientName] = name
	}
	if m := genderPattern.FindStringSubmatch(text); m != nil {
		g := strings.ToUpper(m[1])
		if g == "M" || g == "MALE" {
			result[rm.Gender] = "Male"
		} else {
			result[rm.Gender] = "Female"
		}
	}
	if m := bloodGroupPattern.FindStringSubmatch(text); m != nil {
		if group := normalizeBloodGroup(m[1]); group != "" {
			result[rm.BloodGroup] = group
		}
		if rh := NormalizeRh(m[2]); rh != "" {
			result[rm.RhType] = rh
		}
	}
	if result[rm.RhType] == nil {
		if m := rhPattern.FindStringSubmatch(text); m != nil {
			if rh := NormalizeRh(m[1]); rh != "" {
				result[rm.RhType] = rh
			}
		}
	}
	if m := empCodePattern.FindStringSubmatch(text); m != nil {
		result[rm.EmpCode] = strings.TrimSpace(m[1])
	}
	if m := uhidPattern.FindStringSubmatch(text); m != nil {
		result[rm.UHIDNo] = strings.TrimSpace(m[1])
	}

	return result, Count(result)
}

// Count is the number of non-nil value fields; flags are not counted.
func Count(result rm.Record) int {
	n := 0
	for k, v := range result {
		if v != nil && !rm.IsFlagName(k) {
			n++
		}
	}
	return n
}

func valueAndFlag(text string, p fieldPattern) (float64, string, bool) {
	loc := p.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return 0, "", false
	}
	value, err := strconv.ParseFloat(text[loc[2]:loc[3]], 64)
	if err != nil {
		return 0, "", false
	}
	return value, detectFlag(text, loc[0], loc[1]), true
}

// detectFlag looks for a flag token on the matched line, then for a line
// holding nothing but a flag token right after it.
func detectFlag(text string, start, end int) string {
	lineStart := strings.LastIndex(text[:start], "\n") + 1
	lineEnd := len(text)
	if i := strings.Index(text[end:], "\n"); i >= 0 {
		lineEnd = end + i
	}

	line := text[lineStart:lineEnd]
	for _, m := range inlineFlagPattern.FindAllStringSubmatchIndex(line, -1) {
		token := line[m[4]:m[5]]
		if isLetterToken(token) && m[5] < len(line) && isWordByte(line[m[5]]) {
			continue
		}
		return NormalizeFlag(token)
	}

	if lineEnd >= len(text) {
		return ""
	}
	nextEnd := len(text)
	if i := strings.Index(text[lineEnd+1:], "\n"); i >= 0 {
		nextEnd = lineEnd + 1 + i
	}
	next := strings.TrimSpace(text[lineEnd:nextEnd])
	if m := standaloneFlagPattern.FindStringSubmatch(next); m != nil {
		return NormalizeFlag(m[1])
	}
	return ""
}

// NormalizeFlag maps flag tokens to HIGH or LOW, "" when unknown.
func NormalizeFlag(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "H", "HIGH", "↑":
		return rm.FlagHigh
	case "L", "LOW", "↓":
		return rm.FlagLow
	}
	return ""
}

// NormalizeRh maps Rh tokens to Positive or Negative, "" when unknown.
func NormalizeRh(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "+", "POSITIVE", "POS":
		return "Positive"
	case "-", "NEGATIVE", "NEG":
		return "Negative"
	}
	return ""
}

func normalizeBloodGroup(raw string) string {
	switch g := strings.ToUpper(strings.TrimSpace(raw)); g {
	case "A", "B", "AB", "O":
		return g
	}
	return ""
}

// findName locates the first label match whose value is followed by a line
// break, end of text, a double space or the start of another identity label.
func findName(text string) (string, bool) {
	offset := 0
	for offset < len(text) {
		loc := namePattern.FindStringSubmatchIndex(text[offset:])
		if loc == nil {
			return "", false
		}
		capStart, capEnd := offset+loc[2], offset+loc[3]
		for end := capStart + 3; end <= capEnd; end++ {
			if !nameTerminatesAt(text, end) {
				continue
			}
			name := strings.TrimSpace(text[capStart:end])
			if len(name) < 3 || nameRejected.MatchString(name) {
				return "", false
			}
			return name, true
		}
		_, size := utf8.DecodeRuneInString(text[offset+loc[0]:])
		offset += loc[0] + size
	}
	return "", false
}

func nameTerminatesAt(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	rest := text[i:]
	for _, t := range nameTerminators {
		if strings.HasPrefix(rest, t) {
			return true
		}
	}
	r1, n := utf8.DecodeRuneInString(rest)
	if !unicode.IsSpace(r1) || n >= len(rest) {
		return false
	}
	r2, _ := utf8.DecodeRuneInString(rest[n:])
	return unicode.IsSpace(r2)
}

func isLetterToken(token string) bool {
	return token != "↑" && token != "↓"
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
