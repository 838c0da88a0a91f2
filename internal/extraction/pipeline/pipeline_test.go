package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/akolanti/MedExtract/internal/domain/jobModel"
	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
	"github.com/akolanti/MedExtract/internal/extraction/chunker"
	"github.com/akolanti/MedExtract/internal/extraction/document"
	"github.com/akolanti/MedExtract/internal/extraction/llm"
)

const labText = "Patient Name: Ravi Kumar\nHaemoglobin: 12.6\nTLC: 8200\nESR: 10"

type mockDocuments struct {
	result document.Result
}

func (m *mockDocuments) Process(ctx context.Context, filename string, data []byte) document.Result {
	return m.result
}

type mockDispatcher struct {
	calls      int
	queued     []chunker.Queued
	OnDispatch func(record rm.Record, queued []chunker.Queued) chunker.Result
}

func (m *mockDispatcher) Dispatch(ctx context.Context, batchId, filename string, record rm.Record, queued []chunker.Queued) chunker.Result {
	m.calls++
	m.queued = queued
	if m.OnDispatch != nil {
		return m.OnDispatch(record, queued)
	}
	return chunker.Result{}
}

func newFile(name string) jobModel.FileJob {
	return jobModel.FileJob{Index: 0, Filename: name, Status: jobModel.FileProcessing}
}

func TestRun_RegexHandledPageSkipsRemote(t *testing.T) {
	page := &rm.Page{Number: 1, Mode: rm.ModeText, RawText: labText}
	disp := &mockDispatcher{}
	p := New(&mockDocuments{result: document.Result{Pages: []*rm.Page{page}}}, disp)

	record, file := p.Run(context.Background(), "batch-1", newFile("ravi.pdf"), nil)

	if disp.calls != 0 {
		t.Errorf("dispatcher called %d times, want 0", disp.calls)
	}
	if page.Handler() != rm.HandlerRegex {
		t.Errorf("handler = %q", page.Handler())
	}
	if file.Status != jobModel.FileDone || file.PagesRegexHandled != 1 {
		t.Errorf("file = %+v", file)
	}
	if file.PatientName != "Ravi Kumar" || file.CostUSD != 0 {
		t.Errorf("name = %q cost = %v", file.PatientName, file.CostUSD)
	}
	if got, _ := record.Float(rm.Haemoglobin); got != 12.6 {
		t.Errorf("Haemoglobin = %v", record[rm.Haemoglobin])
	}
	note := record.Note()
	if !strings.HasPrefix(note, "CRITICAL_UNRECOVERED: Blood_Group, Serum_Creatinine, SGOT_AST, SGPT_ALT | UNRECOVERED: ") {
		t.Errorf("note = %q", note)
	}
	if strings.Contains(note, rm.Mobile) || strings.Contains(note, "NAME_NOT_FOUND") {
		t.Errorf("note = %q", note)
	}
	for _, f := range file.UnrecoveredFields {
		if f == rm.Remarks || f == rm.Haemoglobin {
			t.Errorf("%s should not be listed as unrecovered", f)
		}
	}
	if file.ErrorNotes != note {
		t.Errorf("file notes %q differ from record note %q", file.ErrorNotes, note)
	}
}

func TestRun_OCRHandledPage(t *testing.T) {
	page := &rm.Page{Number: 1, Mode: rm.ModeImage, Image: []byte("png"),
		OCR: &rm.OCRResult{Text: labText, Confidence: 0.91, AboveThreshold: true}}
	disp := &mockDispatcher{}
	p := New(&mockDocuments{result: document.Result{Pages: []*rm.Page{page}}}, disp)

	_, file := p.Run(context.Background(), "batch-1", newFile("ravi.pdf"), nil)

	if disp.calls != 0 || page.Handler() != rm.HandlerOCR || file.PagesOCRHandled != 1 {
		t.Errorf("calls = %d handler = %q file = %+v", disp.calls, page.Handler(), file)
	}
}

func TestRun_Routing(t *testing.T) {
	lowConfidence := &rm.Page{Number: 1, Mode: rm.ModeImage, Image: []byte("png"),
		OCR: &rm.OCRResult{Text: labText, Confidence: 0.4, AboveThreshold: false}}
	weakText := &rm.Page{Number: 2, Mode: rm.ModeText, RawText: "Haemoglobin: 13.1\nComments: see overleaf for the urine panel"}
	noImage := &rm.Page{Number: 3, Mode: rm.ModeImage}
	blank := &rm.Page{Number: 4, Mode: rm.ModeText}
	graph := &rm.Page{Number: 5, Mode: rm.ModeGraph, Category: rm.GraphAudiogram}

	disp := &mockDispatcher{OnDispatch: func(record rm.Record, queued []chunker.Queued) chunker.Result {
		record[rm.XRAY] = "Normal study"
		for _, q := range queued {
			q.Page.SetHandler(rm.HandlerAI)
		}
		return chunker.Result{InputTokens: 1000, OutputTokens: 100, PagesAIHandled: len(queued), Calls: 2}
	}}
	pages := []*rm.Page{lowConfidence, weakText, noImage, blank, graph}
	p := New(&mockDocuments{result: document.Result{Pages: pages}}, disp)

	record, file := p.Run(context.Background(), "batch-1", newFile("ravi.pdf"), nil)

	if disp.calls != 1 || len(disp.queued) != 2 {
		t.Fatalf("calls = %d queued = %d", disp.calls, len(disp.queued))
	}
	if disp.queued[0].Page != lowConfidence || disp.queued[0].Mode != rm.ModeImage {
		t.Errorf("first queued = %+v", disp.queued[0])
	}
	if disp.queued[1].Page != weakText || disp.queued[1].Mode != rm.ModeText {
		t.Errorf("text page should be sent as text, got %+v", disp.queued[1])
	}
	if noImage.Handler() != rm.HandlerSkippedNoImage {
		t.Errorf("no image handler = %q", noImage.Handler())
	}
	if blank.Handler() != rm.HandlerSkippedNoNulls {
		t.Errorf("blank handler = %q", blank.Handler())
	}
	if graph.Handler() != rm.HandlerGraph || record[rm.AUDIOMETRY] != rm.GraphPresent || file.PagesGraph != 1 {
		t.Errorf("graph handler = %q AUDIOMETRY = %v", graph.Handler(), record[rm.AUDIOMETRY])
	}
	// low confidence OCR text is never pattern matched, the weak text page still contributes
	if got, _ := record.Float(rm.Haemoglobin); got != 13.1 {
		t.Errorf("Haemoglobin = %v", record[rm.Haemoglobin])
	}
	if record[rm.XRAY] != "Normal study" {
		t.Errorf("XRAY = %v", record[rm.XRAY])
	}
	if file.InputTokens != 1000 || file.OutputTokens != 100 || file.PagesAIHandled != 2 {
		t.Errorf("file = %+v", file)
	}
	if file.CostUSD != jobModel.EstimateCost(1000, 100) {
		t.Errorf("cost = %v", file.CostUSD)
	}
	if file.Status != jobModel.FileDone {
		t.Errorf("status = %q", file.Status)
	}
}

func TestRun_Failures(t *testing.T) {
	t.Run("document error", func(t *testing.T) {
		disp := &mockDispatcher{}
		p := New(&mockDocuments{result: document.Result{Err: document.ErrPDFCorrupted}}, disp)

		record, file := p.Run(context.Background(), "batch-1", newFile("ravi_kumar.pdf"), []byte("junk"))

		if file.Status != jobModel.FileFailed || disp.calls != 0 {
			t.Errorf("status = %q calls = %d", file.Status, disp.calls)
		}
		if file.PatientName != "ravi_kumar" {
			t.Errorf("patient name = %q", file.PatientName)
		}
		if record.Note() != "PDF_CORRUPTED | NAME_NOT_FOUND" {
			t.Errorf("note = %q", record.Note())
		}
		if len(record) != len(rm.Columns) {
			t.Errorf("record has %d columns, want %d", len(record), len(rm.Columns))
		}
	})

	t.Run("password protected", func(t *testing.T) {
		disp := &mockDispatcher{}
		p := New(&mockDocuments{result: document.Result{Err: document.ErrPDFPasswordProtected}}, disp)

		record, file := p.Run(context.Background(), "batch-1", newFile("meena_iyer.pdf"), []byte("%PDF-1.7"))

		if file.Status != jobModel.FileFailed || disp.calls != 0 {
			t.Errorf("status = %q calls = %d", file.Status, disp.calls)
		}
		if !strings.Contains(file.ErrorNotes, "PDF_PASSWORD_PROTECTED") {
			t.Errorf("error notes = %q", file.ErrorNotes)
		}
		if file.PatientName != "meena_iyer" || record.String(rm.PatientName) != "meena_iyer" {
			t.Errorf("patient name = %q / %q", file.PatientName, record.String(rm.PatientName))
		}
	})

	t.Run("remote error fails the document", func(t *testing.T) {
		page := &rm.Page{Number: 1, Mode: rm.ModeText, RawText: "Patient Name: Ravi Kumar\nnothing else here"}
		disp := &mockDispatcher{OnDispatch: func(record rm.Record, queued []chunker.Queued) chunker.Result {
			return chunker.Result{Note: llm.NoteAPIError, InputTokens: 50}
		}}
		p := New(&mockDocuments{result: document.Result{Pages: []*rm.Page{page}}}, disp)

		record, file := p.Run(context.Background(), "batch-1", newFile("ravi.pdf"), nil)

		if file.Status != jobModel.FileFailed {
			t.Errorf("status = %q", file.Status)
		}
		if !strings.HasPrefix(record.Note(), "API_ERROR | CRITICAL_UNRECOVERED: ") {
			t.Errorf("note = %q", record.Note())
		}
		if file.InputTokens != 50 {
			t.Errorf("tokens = %d", file.InputTokens)
		}
	})

	t.Run("partial OCR is not a failure", func(t *testing.T) {
		page := &rm.Page{Number: 1, Mode: rm.ModeText, RawText: labText}
		p := New(&mockDocuments{result: document.Result{Pages: []*rm.Page{page}, PartialOCR: true}}, &mockDispatcher{})

		record, file := p.Run(context.Background(), "batch-1", newFile("ravi.pdf"), nil)

		if file.Status != jobModel.FileDone {
			t.Errorf("status = %q", file.Status)
		}
		if !strings.HasPrefix(record.Note(), NotePartialOCR+" | ") {
			t.Errorf("note = %q", record.Note())
		}
	})
}

func TestUnrecoveredReport(t *testing.T) {
	record := rm.NewRecord()
	for _, f := range rm.ValueFields {
		record[f] = "x"
	}
	if all, note := unrecoveredReport(record); len(all) != 0 || note != "" {
		t.Errorf("complete record: %v %q", all, note)
	}

	record[rm.Haemoglobin] = nil
	record[rm.ESR] = nil
	record[rm.Mobile] = nil
	all, note := unrecoveredReport(record)
	if note != "CRITICAL_UNRECOVERED: Haemoglobin | UNRECOVERED: ESR" {
		t.Errorf("note = %q", note)
	}
	if len(all) != 2 {
		t.Errorf("all = %v", all)
	}
}
