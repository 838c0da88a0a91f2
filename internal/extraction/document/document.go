// Package document turns raw PDF bytes into classified pages: per-page text, graph detection,
// one batched render of every page that may need a picture, and local OCR on scanned pages.
package document

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/customExec"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/extraction/ocr"
	"github.com/akolanti/MedExtract/internal/metrics"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

type ErrorCode string

const (
	ErrPDFCorrupted         ErrorCode = "PDF_CORRUPTED"
	ErrPDFPasswordProtected ErrorCode = "PDF_PASSWORD_PROTECTED"
)

var logger = logger_i.NewLogger("document")

type Result struct {
	Pages      []*rm.Page
	PartialOCR bool
	Err        ErrorCode
}

type Config struct {
	PdftoppmPath string
	DPI          int
	OCRThreshold float64
	TempDir      string
	// CPUSlots bounds concurrent renders and OCR runs across all documents. 0 means NumCPU.
	CPUSlots int
}

type Processor struct {
	extractor TextExtractor
	engine    ocr.Engine
	render    *renderer
	threshold float64
	cpu       *semaphore.Weighted
}

func NewProcessor(runner customExec.Runner, engine ocr.Engine, extractor TextExtractor, cfg Config) *Processor {
	if runner == nil {
		runner = customExec.NewRunner()
	}
	if extractor == nil {
		extractor = NewTextExtractor()
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = config.RenderDPI
	}
	if cfg.CPUSlots <= 0 {
		cfg.CPUSlots = runtime.NumCPU()
	}
	return &Processor{
		extractor: extractor,
		engine:    engine,
		render:    &renderer{runner: runner, path: cfg.PdftoppmPath, dpi: cfg.DPI, tempDir: cfg.TempDir},
		threshold: cfg.OCRThreshold,
		cpu:       semaphore.NewWeighted(int64(cfg.CPUSlots)),
	}
}

func (p *Processor) Process(ctx context.Context, filename string, data []byte) Result {
	log := logger.WithTrace(ctx).With("filename", filename)

	texts, err := p.extractor.ExtractPages(ctx, data)
	if err != nil {
		if errors.Is(err, ErrEncrypted) {
			log.Warn("pdf is password protected", "error", err)
			return Result{Err: ErrPDFPasswordProtected}
		}
		log.Error("pdf could not be parsed", "error", err)
		return Result{Err: ErrPDFCorrupted}
	}
	if len(texts) == 0 {
		log.Error("pdf has no pages")
		return Result{Err: ErrPDFCorrupted}
	}

	pages := make([]*rm.Page, len(texts))
	wanted := make(map[int]bool)
	first, last := 0, 0
	for i, text := range texts {
		page := classify(i+1, text)
		pages[i] = page
		if !isRenderCandidate(page) {
			continue
		}
		wanted[page.Number] = true
		if first == 0 || page.Number < first {
			first = page.Number
		}
		if page.Number > last {
			last = page.Number
		}
	}

	result := Result{Pages: pages}
	if len(wanted) == 0 {
		return result
	}

	images, err := p.renderBatch(ctx, data, first, last, wanted)
	if err != nil {
		log.Error("render failed", "first", first, "last", last, "error", err)
		return Result{Err: ErrPDFCorrupted}
	}

	var missing []int
	for _, page := range pages {
		if !wanted[page.Number] {
			continue
		}
		if png, ok := images[page.Number]; ok {
			page.Image = png
		} else if page.Mode == rm.ModeImage {
			missing = append(missing, page.Number)
		}
	}
	if len(missing) > 0 {
		result.PartialOCR = true
		log.Warn("partial OCR, pages missing from render", "pages", missing)
	}

	p.recognize(ctx, pages)
	log.Debug("document processed", "pages", len(pages), "rendered", len(images))
	return result
}

func (p *Processor) renderBatch(ctx context.Context, data []byte, first, last int, wanted map[int]bool) (map[int][]byte, error) {
	if err := p.cpu.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.cpu.Release(1)
	start := time.Now()
	defer func() { metrics.CaptureExecutionMetrics("pdftoppm", time.Since(start)) }()
	return p.render.renderRange(ctx, data, first, last, wanted)
}

// recognize runs OCR on every rendered image page, each run holding one CPU slot.
func (p *Processor) recognize(ctx context.Context, pages []*rm.Page) {
	var g errgroup.Group
	for _, page := range pages {
		if page.Mode != rm.ModeImage || !page.HasImage() {
			continue
		}
		g.Go(func() error {
			if err := p.cpu.Acquire(ctx, 1); err != nil {
				res := rm.OCRResult{Engine: ocr.EngineNone}
				page.OCR = &res
				return nil
			}
			defer p.cpu.Release(1)
			res := ocr.Gate(ctx, p.engine, page.Image, p.threshold)
			page.OCR = &res
			return nil
		})
	}
	_ = g.Wait()
}
