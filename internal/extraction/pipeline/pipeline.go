// Package pipeline runs one document through every tier: graph detection, pattern matching
// on text and OCR output, the chunked remote tier, then validation.
package pipeline

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/extraction/chunker"
	"github.com/akolanti/MedExtract/internal/extraction/document"
	"github.com/akolanti/MedExtract/internal/extraction/llm"
	"github.com/akolanti/MedExtract/internal/extraction/merge"
	"github.com/akolanti/MedExtract/internal/extraction/regexExtractor"
	"github.com/akolanti/MedExtract/internal/extraction/validator"
	"github.com/akolanti/MedExtract/internal/metrics"
	"github.com/akolanti/MedExtract/pkg/logger_i"
)

const NotePartialOCR = "PARTIAL_OCR"

var logger = logger_i.NewLogger("pipeline")

// notes that make a document count as failed
var failureNotes = []string{
	llm.NoteAPIError,
	string(document.ErrPDFCorrupted),
	string(document.ErrPDFPasswordProtected),
}

type DocumentProcessor interface {
	Process(ctx context.Context, filename string, data []byte) document.Result
}

type Dispatcher interface {
	Dispatch(ctx context.Context, batchId, filename string, record rm.Record, queued []chunker.Queued) chunker.Result
}

type Pipeline struct {
	documents  DocumentProcessor
	dispatcher Dispatcher
}

func New(documents DocumentProcessor, dispatcher Dispatcher) *Pipeline {
	return &Pipeline{documents: documents, dispatcher: dispatcher}
}

// Run extracts one document. file carries the identity of the document and comes back
// terminal, with its counters and notes filled in.
func (p *Pipeline) Run(ctx context.Context, batchId string, file jobModel.FileJob, data []byte) (rm.Record, jobModel.FileJob) {
	start := time.Now()
	log := logger.WithTrace(ctx).With("filename", file.Filename)

	res := p.documents.Process(ctx, file.Filename, data)
	if res.Err != "" {
		log.Warn("document error", "error", res.Err)
		record := validator.Validate(rm.Record{}, file.Filename, string(res.Err))
		file.Status = jobModel.FileFailed
		return record, finish(record, file, start)
	}

	var notes []string
	if res.PartialOCR {
		notes = append(notes, NotePartialOCR)
	}

	record := rm.NewRecord()
	queued := p.routePages(ctx, record, &file, res.Pages)

	if len(queued) > 0 {
		out := p.dispatcher.Dispatch(ctx, batchId, file.Filename, record, queued)
		if out.Note != "" {
			notes = append(notes, out.Note)
		}
		file.InputTokens += out.InputTokens
		file.OutputTokens += out.OutputTokens
		file.PagesAIHandled += out.PagesAIHandled
	}
	file.CostUSD = jobModel.EstimateCost(file.InputTokens, file.OutputTokens)

	unrecovered, note := unrecoveredReport(record)
	if note != "" {
		notes = append(notes, note)
		file.UnrecoveredFields = unrecovered
		log.Info("fields unrecovered", "count", len(unrecovered))
	}

	for _, page := range res.Pages {
		if h := page.Handler(); h != "" {
			metrics.PagesHandled.WithLabelValues(string(h)).Inc()
		}
	}

	record = validator.Validate(record, file.Filename, strings.Join(notes, " | "))
	if hasFailure(record.Note()) {
		file.Status = jobModel.FileFailed
	} else {
		file.Status = jobModel.FileDone
	}
	return record, finish(record, file, start)
}

// routePages runs the free tiers over every page and returns the pages still worth a remote call.
func (p *Pipeline) routePages(ctx context.Context, record rm.Record, file *jobModel.FileJob, pages []*rm.Page) []chunker.Queued {
	log := logger.WithTrace(ctx).With("filename", file.Filename)
	var queued []chunker.Queued

	for _, page := range pages {
		switch page.Mode {
		case rm.ModeGraph:
			merge.MarkGraphPresent(record, page.Category)
			page.SetHandler(rm.HandlerGraph)
			file.PagesGraph++
			log.Debug("graph page", "page", page.Number, "category", page.Category)

		case rm.ModeImage:
			if page.OCR != nil && page.OCR.Text != "" && page.OCR.AboveThreshold {
				found, count := regexExtractor.Extract(page.OCR.Text)
				if count >= regexExtractor.HandledThreshold {
					merge.Merge(record, found)
					page.SetHandler(rm.HandlerOCR)
					file.PagesOCRHandled++
					log.Debug("page handled by OCR", "page", page.Number, "fields", count, "confidence", page.OCR.Confidence)
					continue
				}
				if count > 0 {
					merge.Merge(record, found)
				}
			}
			if page.HasImage() {
				queued = append(queued, chunker.Queued{Page: page, Mode: rm.ModeImage})
			} else {
				page.SetHandler(rm.HandlerSkippedNoImage)
				log.Warn("image page without a render, skipped", "page", page.Number)
			}

		default:
			found, count := regexExtractor.Extract(page.RawText)
			if count >= regexExtractor.HandledThreshold {
				merge.Merge(record, found)
				page.SetHandler(rm.HandlerRegex)
				file.PagesRegexHandled++
				log.Debug("page handled by regex", "page", page.Number, "fields", count)
				continue
			}
			if count > 0 {
				merge.Merge(record, found)
			}
			// the text layer is already good, an image would cost vision tokens for nothing
			if page.RawText != "" {
				queued = append(queued, chunker.Queued{Page: page, Mode: rm.ModeText})
			} else {
				page.SetHandler(rm.HandlerSkippedNoNulls)
			}
		}
	}
	return queued
}

func unrecoveredReport(record rm.Record) ([]string, string) {
	var all, critical, other []string
	for _, field := range record.NullValueFields() {
		if rm.In(rm.UnreportedFields, field) {
			continue
		}
		all = append(all, field)
		if rm.In(rm.CriticalFields, field) {
			critical = append(critical, field)
		} else {
			other = append(other, field)
		}
	}
	var parts []string
	if len(critical) > 0 {
		parts = append(parts, "CRITICAL_UNRECOVERED: "+strings.Join(critical, ", "))
	}
	if len(other) > 0 {
		parts = append(parts, "UNRECOVERED: "+strings.Join(other, ", "))
	}
	return all, strings.Join(parts, " | ")
}

func hasFailure(note string) bool {
	for _, n := range failureNotes {
		if strings.Contains(note, n) {
			return true
		}
	}
	return false
}

func finish(record rm.Record, file jobModel.FileJob, start time.Time) jobModel.FileJob {
	file.ErrorNotes = record.Note()
	file.PatientName = record.String(rm.PatientName)
	file.FieldsExtracted, file.FieldsNull = validator.CountFields(record)
	file.ProcessingTime = math.Round(time.Since(start).Seconds()*100) / 100
	return file
}
