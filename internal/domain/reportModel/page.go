package reportModel

import "sync"

type PageMode string
type Handler string
type GraphCategory string

const (
	ModeText  PageMode = "text"
	ModeImage PageMode = "image"
	ModeGraph PageMode = "graph"

	HandlerGraph          Handler = "GRAPH_PAGE"
	HandlerRegex          Handler = "REGEX_HANDLED"
	HandlerOCR            Handler = "OCR_HANDLED"
	HandlerAI             Handler = "AI_HANDLED"
	HandlerSkippedNoImage Handler = "SKIPPED_NO_IMAGE"
	HandlerSkippedNoNulls Handler = "SKIPPED_NO_NULLS"

	GraphECG       GraphCategory = "ECG"
	GraphAudiogram GraphCategory = "AUDIOGRAM"
	GraphTMT       GraphCategory = "TMT"
	GraphSpiro     GraphCategory = "SPIROMETRY_CURVE"
	GraphGeneric   GraphCategory = "GRAPH"
)

// GraphTargets maps a graph family to the speciality column it proves present.
var GraphTargets = map[GraphCategory]string{
	GraphAudiogram: AUDIOMETRY,
	GraphTMT:       PFT,
	GraphSpiro:     PFT,
}

// OCRResult is the outcome of local recognition on one page image.
type OCRResult struct {
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	AboveThreshold bool    `json:"above_threshold"`
	Engine         string  `json:"engine"`
}

type Page struct {
	Number   int
	Mode     PageMode
	RawText  string
	Image    []byte
	OCR      *OCRResult
	Category GraphCategory

	mu      sync.Mutex
	handler Handler
}

// SetHandler records the tier that owns the page. Only the first call wins.
func (p *Page) SetHandler(h Handler) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handler != "" {
		return false
	}
	p.handler = h
	return true
}

func (p *Page) Handler() Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler
}

func (p *Page) HasImage() bool {
	return len(p.Image) > 0
}
