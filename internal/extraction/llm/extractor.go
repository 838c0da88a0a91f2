// Package llm is the remote extraction tier: it asks a vision/text model for the fields the
// cheaper tiers could not fill, bounded by one process-wide concurrency limit.
package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/metrics"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"golang.org/x/sync/semaphore"
)

const (
	NoteAPIError = "API_ERROR"
	NoteMock     = "LLM_MOCK"
)

var logger = logger_i.NewLogger("llm")

type Request struct {
	System string
	Prompt string
	Images [][]byte
}

type Response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// Provider makes exactly one call to a model. Retries belong to the Extractor.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

type Options struct {
	Concurrency int64
	MaxRetries  int
	Mock        bool
}

type Extractor struct {
	provider Provider
	sem      *semaphore.Weighted
	attempts int
	mock     bool
	backoff  func(attempt int) time.Duration
}

func NewExtractor(provider Provider, opts Options) *Extractor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = config.AIMaxRetries
	}
	return &Extractor{
		provider: provider,
		sem:      semaphore.NewWeighted(opts.Concurrency),
		attempts: opts.MaxRetries + 1,
		mock:     opts.Mock,
		backoff:  jitterBackoff,
	}
}

// 1s, 2s, 4s ... plus up to a second of jitter
func jitterBackoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + rand.Float64()
	return time.Duration(secs * float64(time.Second))
}

// TextPayload joins page texts the way text mode sends them.
func TextPayload(pages []*rm.Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprintf("[PAGE %d]\n%s", p.Number, p.RawText)
	}
	return strings.Join(parts, "\n\n"+PageBreak+"\n\n")
}

// Extract asks the model for fields from pages. It never returns an error: a call that
// could not be completed comes back empty with the API_ERROR note. Token counts cover
// every attempt, including failed ones.
func (e *Extractor) Extract(ctx context.Context, fields []string, pages []*rm.Page, mode rm.PageMode) (rm.Record, string, int64, int64) {
	if len(fields) == 0 {
		return rm.Record{}, "", 0, 0
	}
	if e.mock || e.provider == nil {
		logger.WithTrace(ctx).Info("mock mode, skipping remote call", "fields", len(fields))
		return rm.Record{}, NoteMock, 0, 0
	}

	req := Request{System: systemPrompt}
	if mode == rm.ModeImage {
		for _, p := range pages {
			if p.HasImage() {
				req.Images = append(req.Images, p.Image)
			}
		}
	}
	if len(req.Images) > 0 {
		req.Prompt = imagePrompt(fields, len(req.Images))
	} else {
		req.Images = nil
		req.Prompt = textPrompt(fields, TextPayload(pages))
	}
	return e.callWithRetry(ctx, req)
}

func (e *Extractor) callWithRetry(ctx context.Context, req Request) (rm.Record, string, int64, int64) {
	log := logger.WithTrace(ctx).With("provider", e.provider.Name())
	var totalIn, totalOut int64

	for attempt := 0; attempt < e.attempts; attempt++ {
		last := attempt == e.attempts-1

		resp, err := e.complete(ctx, req)
		if err != nil {
			log.Error("remote call failed", "attempt", attempt+1, "of", e.attempts, "error", err)
			if last || ctx.Err() != nil {
				break
			}
			if !sleep(ctx, e.backoff(attempt)) {
				break
			}
			continue
		}

		totalIn += resp.InputTokens
		totalOut += resp.OutputTokens

		data, err := parseResponse(resp.Text)
		if err != nil {
			log.Warn("model returned an unusable response", "attempt", attempt+1, "of", e.attempts, "error", err)
			continue
		}
		return data, "", totalIn, totalOut
	}
	return rm.Record{}, NoteAPIError, totalIn, totalOut
}

// complete holds one concurrency slot for the duration of a single attempt.
func (e *Extractor) complete(ctx context.Context, req Request) (Response, error) {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Response{}, err
	}
	defer e.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, config.LLMRequestTimeout)
	defer cancel()
	start := time.Now()
	resp, err := e.provider.Complete(callCtx, req)
	metrics.CaptureExecutionMetrics(e.provider.Name(), time.Since(start))
	return resp, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
