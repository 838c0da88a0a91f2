package ocr

import (
	"context"
	"math"
	"sync"

	"github.com/akolanti/MedExtract/internal/customExec"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

const EngineNone = "none"

// Engine recognises the text of one rendered page. Confidence is 0..1.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (text string, confidence float64, err error)
}

type Options struct {
	Runner        customExec.Runner
	TesseractPath string
	TempDir       string
}

type engineFactory func(opts Options) Engine

var (
	registryMu sync.RWMutex
	registry   = map[string]engineFactory{
		"tesseract": func(opts Options) Engine { return NewTesseractEngine(opts) },
	}
	logger = logger_i.NewLogger("ocr")
)

func register(name string, f engineFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// NewEngine returns the named engine, falling back to the tesseract CLI
// when the name is unknown or was not compiled in.
func NewEngine(name string, opts Options) Engine {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		logger.Warn("unknown OCR engine, using tesseract", "engine", name)
		f = registry["tesseract"]
	}
	return f(opts)
}

// Gate runs engine on png and decides whether the text is trustworthy
// enough for pattern matching. It never fails.
func Gate(ctx context.Context, engine Engine, png []byte, threshold float64) rm.OCRResult {
	log := logger.WithTrace(ctx)
	if engine == nil || len(png) == 0 {
		return rm.OCRResult{Engine: EngineNone}
	}
	text, confidence, err := engine.Recognize(ctx, png)
	if err != nil {
		log.Error("OCR failed, returning empty result", "engine", engine.Name(), "error", err)
		return rm.OCRResult{Engine: EngineNone}
	}
	result := rm.OCRResult{
		Text:           text,
		Confidence:     math.Round(confidence*10000) / 10000,
		AboveThreshold: confidence >= threshold,
		Engine:         engine.Name(),
	}
	log.Debug("OCR result", "engine", result.Engine, "confidence", result.Confidence, "above_threshold", result.AboveThreshold)
	return result
}
