package document

import (
	"strings"

	"github.com/akolanti/MedExtract/internal/config"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

type graphFamily struct {
	keywords []string
	category rm.GraphCategory
}

// checked in order, the first family with a hit names the category
var graphFamilies = []graphFamily{
	{[]string{"ecg", "ekg", "electrocardiogram"}, rm.GraphECG},
	{[]string{"audiogram", "audiometry graph"}, rm.GraphAudiogram},
	{[]string{"tmt", "treadmill"}, rm.GraphTMT},
	{[]string{"spirometry curve", "flow volume"}, rm.GraphSpiro},
}

var graphKeywords = []string{
	"ECG", "EKG", "electrocardiogram", "audiogram", "audiometry graph",
	"spirometry curve", "flow volume", "TMT", "treadmill", "waveform",
}

// DetectGraph reports whether text mentions a graph or waveform and which family it belongs to.
func DetectGraph(text string) (rm.GraphCategory, bool) {
	lower := strings.ToLower(text)
	for _, family := range graphFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.category, true
			}
		}
	}
	for _, kw := range graphKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return rm.GraphGeneric, true
		}
	}
	return "", false
}

// classify builds the page for one extracted text. Only short pages can be graph pages,
// a long report that merely mentions an ECG is still read as text.
func classify(number int, raw string) *rm.Page {
	text := strings.TrimSpace(raw)
	page := &rm.Page{Number: number, RawText: text}

	length := len([]rune(text))
	if category, ok := DetectGraph(text); ok && length < config.GraphMaxChars {
		page.Mode = rm.ModeGraph
		page.Category = category
		page.SetHandler(rm.HandlerGraph)
		return page
	}
	if length >= config.TextMinChars {
		page.Mode = rm.ModeText
	} else {
		page.Mode = rm.ModeImage
	}
	return page
}

func isRenderCandidate(p *rm.Page) bool {
	return p.Mode == rm.ModeText || p.Mode == rm.ModeImage
}
