// Package chunker groups the pages the cheap tiers could not finish into a few remote calls,
// asks only for the fields still missing and folds the answers back into the record.
package chunker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/extraction/llm"
	"github.com/akolanti/MedExtract/internal/extraction/merge"
	"github.com/akolanti/MedExtract/pkg/logger_i"
	"golang.org/x/sync/errgroup"
)

var logger = logger_i.NewLogger("chunker")

type Extractor interface {
	Extract(ctx context.Context, fields []string, pages []*rm.Page, mode rm.PageMode) (rm.Record, string, int64, int64)
}

// Queued is a page waiting for the remote tier and the mode it should be sent in.
type Queued struct {
	Page *rm.Page
	Mode rm.PageMode
}

type Chunk struct {
	Pages  []*rm.Page
	Mode   rm.PageMode
	Fields []string
}

type Result struct {
	Note           string
	InputTokens    int64
	OutputTokens   int64
	PagesAIHandled int
	Calls          int
}

type outcome struct {
	data    rm.Record
	note    string
	in, out int64
}

type Dispatcher struct {
	extractor Extractor
	recorder  jobModel.CallRecorder
	imageSize int
	textSize  int
}

func NewDispatcher(extractor Extractor, recorder jobModel.CallRecorder) *Dispatcher {
	return &Dispatcher{
		extractor: extractor,
		recorder:  recorder,
		imageSize: config.ImageChunkSize,
		textSize:  config.TextChunkSize,
	}
}

// Plan splits queued pages into chunks against one snapshot of the null fields.
// Pages that will not be sent are tagged here.
func (d *Dispatcher) Plan(snapshot []string, queued []Queued) []Chunk {
	if len(snapshot) == 0 {
		for _, q := range queued {
			q.Page.SetHandler(rm.HandlerSkippedNoNulls)
		}
		return nil
	}

	var images, texts []*rm.Page
	for _, q := range queued {
		if q.Mode == rm.ModeImage {
			images = append(images, q.Page)
		} else {
			texts = append(texts, q.Page)
		}
	}

	var chunks []Chunk
	for _, group := range split(images, d.imageSize) {
		var withImage []*rm.Page
		for _, p := range group {
			if p.HasImage() {
				withImage = append(withImage, p)
			} else {
				p.SetHandler(rm.HandlerSkippedNoImage)
			}
		}
		if len(withImage) == 0 {
			continue
		}
		// images are never pruned, the text layer says nothing about what is drawn
		chunks = append(chunks, Chunk{Pages: withImage, Mode: rm.ModeImage, Fields: snapshot})
	}
	for _, group := range split(texts, d.textSize) {
		fields := PruneFields(snapshot, group)
		if len(fields) == 0 {
			for _, p := range group {
				p.SetHandler(rm.HandlerSkippedNoNulls)
			}
			continue
		}
		chunks = append(chunks, Chunk{Pages: group, Mode: rm.ModeText, Fields: fields})
	}
	return chunks
}

// PruneFields keeps the fields whose aliases occur somewhere in the pages' text.
// Always-keep fields and fields without aliases are never pruned.
func PruneFields(fields []string, pages []*rm.Page) []string {
	var texts []string
	for _, p := range pages {
		if p.RawText != "" {
			texts = append(texts, p.RawText)
		}
	}
	combined := strings.ToLower(strings.Join(texts, " "))

	var pruned []string
	for _, field := range fields {
		aliases, ok := rm.FieldAliases[field]
		if rm.In(rm.AlwaysKeepFields, field) || !ok || len(aliases) == 0 {
			pruned = append(pruned, field)
			continue
		}
		for _, alias := range aliases {
			if strings.Contains(combined, alias) {
				pruned = append(pruned, field)
				break
			}
		}
	}
	return pruned
}

func split(pages []*rm.Page, size int) [][]*rm.Page {
	var groups [][]*rm.Page
	for i := 0; i < len(pages); i += size {
		end := min(i+size, len(pages))
		groups = append(groups, pages[i:end])
	}
	return groups
}

// Dispatch fires every planned chunk at once and merges the answers into record one chunk
// at a time, in plan order.
func (d *Dispatcher) Dispatch(ctx context.Context, batchId, filename string, record rm.Record, queued []Queued) Result {
	log := logger.WithTrace(ctx).With("filename", filename)

	chunks := d.Plan(record.NullValueFields(), queued)
	if len(chunks) == 0 {
		return Result{}
	}
	log.Info("dispatching remote chunks", "chunks", len(chunks), "queued_pages", len(queued))

	outcomes := make([]outcome, len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			outcomes[i] = d.call(ctx, chunk)
			return nil
		})
	}
	_ = g.Wait()

	var res Result
	var notes []string
	for i, chunk := range chunks {
		o := outcomes[i]
		res.Calls++

		call := jobModel.CallRecord{
			BatchId:      batchId,
			Filename:     filename,
			CallType:     jobModel.CallTypeChunked,
			InputTokens:  o.in,
			OutputTokens: o.out,
			CostUSD:      jobModel.EstimateCost(o.in, o.out),
			Success:      len(o.data) > 0 && o.note == "",
			ErrorNote:    o.note,
			CreatedTime:  time.Now(),
		}
		if len(chunk.Pages) == 1 {
			n := chunk.Pages[0].Number
			call.PageNumber = &n
		}
		if d.recorder != nil {
			if err := d.recorder.RecordCall(ctx, call); err != nil {
				log.Error("failed to record remote call", "error", err)
			}
		}

		if o.note != "" {
			notes = append(notes, o.note)
		}
		res.InputTokens += o.in
		res.OutputTokens += o.out

		if len(o.data) > 0 {
			merge.Merge(record, o.data)
			res.PagesAIHandled += len(chunk.Pages)
		}
		for _, p := range chunk.Pages {
			p.SetHandler(rm.HandlerAI)
		}
		log.Debug("chunk merged", "pages", pageNumbers(chunk.Pages), "mode", chunk.Mode,
			"fields", len(chunk.Fields), "input_tokens", o.in, "output_tokens", o.out)
	}
	res.Note = strings.Join(notes, " | ")
	return res
}

// call runs one chunk; a panic inside the extractor becomes an API_ERROR outcome.
func (d *Dispatcher) call(ctx context.Context, chunk Chunk) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithTrace(ctx).Error("remote chunk panicked", "pages", pageNumbers(chunk.Pages), "panic", fmt.Sprint(r))
			o = outcome{data: rm.Record{}, note: llm.NoteAPIError}
		}
	}()
	data, note, in, out := d.extractor.Extract(ctx, chunk.Fields, chunk.Pages, chunk.Mode)
	return outcome{data: data, note: note, in: in, out: out}
}

func pageNumbers(pages []*rm.Page) []int {
	nums := make([]int, len(pages))
	for i, p := range pages {
		nums[i] = p.Number
	}
	return nums
}
