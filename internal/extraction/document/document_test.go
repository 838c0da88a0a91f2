package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

type mockRunner struct {
	calls int
	OnRun func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	m.calls++
	if m.OnRun != nil {
		return m.OnRun(ctx, name, args...)
	}
	return nil, nil, nil
}

// rendersPages writes prefix-N.png for each page, like pdftoppm does.
func rendersPages(t *testing.T, pages ...int) func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	return func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for _, n := range pages {
			if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, n), []byte(fmt.Sprintf("png-%d", n)), 0o600); err != nil {
				t.Fatalf("write fake render: %v", err)
			}
		}
		return nil, nil, nil
	}
}

type mockExtractor struct {
	texts []string
	err   error
}

func (m *mockExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	return m.texts, m.err
}

type mockEngine struct {
	text       string
	confidence float64
}

func (m *mockEngine) Name() string { return "mock" }
func (m *mockEngine) Recognize(ctx context.Context, png []byte) (string, float64, error) {
	return m.text, m.confidence, nil
}

var longText = strings.Repeat("Haemoglobin 13.2 g/dL TLC 8200 Platelet Count 250000 ", 4)

func newTestProcessor(t *testing.T, runner *mockRunner, extractor TextExtractor) *Processor {
	return NewProcessor(runner, &mockEngine{text: "Hb 12.1", confidence: 0.91}, extractor, Config{
		OCRThreshold: 0.7,
		TempDir:      t.TempDir(),
	})
}

func TestDetectGraph(t *testing.T) {
	tests := []struct {
		text     string
		category rm.GraphCategory
		ok       bool
	}{
		{"12 lead ECG", rm.GraphECG, true},
		{"Electrocardiogram report", rm.GraphECG, true},
		{"AUDIOGRAM left ear", rm.GraphAudiogram, true},
		{"Treadmill test", rm.GraphTMT, true},
		{"Flow Volume loop", rm.GraphSpiro, true},
		{"waveform attached", rm.GraphGeneric, true},
		{"CBC report", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			category, ok := DetectGraph(tt.text)
			if ok != tt.ok || category != tt.category {
				t.Errorf("DetectGraph(%q) = %v/%v, want %v/%v", tt.text, category, ok, tt.category, tt.ok)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	t.Run("short graph page", func(t *testing.T) {
		p := classify(1, "  ECG tracing  ")
		if p.Mode != rm.ModeGraph || p.Handler() != rm.HandlerGraph || p.Category != rm.GraphECG {
			t.Errorf("got mode=%v handler=%v category=%v", p.Mode, p.Handler(), p.Category)
		}
		if p.RawText != "ECG tracing" {
			t.Errorf("text not trimmed: %q", p.RawText)
		}
	})

	t.Run("long page mentioning ECG is text", func(t *testing.T) {
		p := classify(2, longText+" ECG normal")
		if p.Mode != rm.ModeText || p.Handler() != "" {
			t.Errorf("got mode=%v handler=%v", p.Mode, p.Handler())
		}
	})

	t.Run("sparse page needs an image", func(t *testing.T) {
		p := classify(3, "Page 3")
		if p.Mode != rm.ModeImage {
			t.Errorf("got mode=%v", p.Mode)
		}
	})
}

func TestProcess_SingleBatchRender(t *testing.T) {
	var gotArgs []string
	runner := &mockRunner{}
	runner.OnRun = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return rendersPages(t, 2, 3, 4)(ctx, name, args...)
	}
	extractor := &mockExtractor{texts: []string{"ECG", longText, "", longText}}
	p := newTestProcessor(t, runner, extractor)

	res := p.Process(context.Background(), "a.pdf", []byte("%PDF"))
	if res.Err != "" {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if runner.calls != 1 {
		t.Errorf("pdftoppm ran %d times, want 1", runner.calls)
	}
	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "-r 200 -png -f 2 -l 4") {
		t.Errorf("args = %q", joined)
	}
	if len(res.Pages) != 4 {
		t.Fatalf("got %d pages", len(res.Pages))
	}
	if res.Pages[0].HasImage() {
		t.Errorf("graph page should not be rendered")
	}
	if string(res.Pages[2].Image) != "png-3" {
		t.Errorf("page 3 image = %q", res.Pages[2].Image)
	}
	if res.Pages[2].OCR == nil || !res.Pages[2].OCR.AboveThreshold || res.Pages[2].OCR.Text != "Hb 12.1" {
		t.Errorf("page 3 OCR = %+v", res.Pages[2].OCR)
	}
	if res.Pages[1].OCR != nil {
		t.Errorf("OCR must only run on image pages")
	}
	if res.PartialOCR {
		t.Errorf("no pages were missing")
	}
}

func TestProcess_PartialOCR(t *testing.T) {
	runner := &mockRunner{}
	runner.OnRun = rendersPages(t, 1)
	extractor := &mockExtractor{texts: []string{longText, "", "scan"}}
	p := newTestProcessor(t, runner, extractor)

	res := p.Process(context.Background(), "a.pdf", []byte("%PDF"))
	if res.Err != "" {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if !res.PartialOCR {
		t.Errorf("missing image pages should mark partial OCR")
	}
	if res.Pages[1].OCR != nil {
		t.Errorf("unrendered page must not be recognised")
	}
}

func TestProcess_MissingTextPageImageIsFine(t *testing.T) {
	runner := &mockRunner{}
	runner.OnRun = rendersPages(t)
	p := newTestProcessor(t, runner, &mockExtractor{texts: []string{longText}})

	res := p.Process(context.Background(), "a.pdf", []byte("%PDF"))
	if res.Err != "" || res.PartialOCR {
		t.Errorf("got err=%v partial=%v", res.Err, res.PartialOCR)
	}
}

func TestProcess_Errors(t *testing.T) {
	t.Run("render failure", func(t *testing.T) {
		runner := &mockRunner{OnRun: func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
			return nil, []byte("Syntax Error"), errors.New("exit status 1")
		}}
		p := newTestProcessor(t, runner, &mockExtractor{texts: []string{""}})
		if res := p.Process(context.Background(), "a.pdf", nil); res.Err != ErrPDFCorrupted {
			t.Errorf("got %v", res.Err)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		p := newTestProcessor(t, &mockRunner{}, &mockExtractor{err: fmt.Errorf("%w: bad", ErrEncrypted)})
		if res := p.Process(context.Background(), "a.pdf", nil); res.Err != ErrPDFPasswordProtected {
			t.Errorf("got %v", res.Err)
		}
	})

	t.Run("no pages", func(t *testing.T) {
		p := newTestProcessor(t, &mockRunner{}, &mockExtractor{texts: nil})
		if res := p.Process(context.Background(), "a.pdf", nil); res.Err != ErrPDFCorrupted {
			t.Errorf("got %v", res.Err)
		}
	})

	t.Run("garbage bytes", func(t *testing.T) {
		runner := &mockRunner{}
		p := newTestProcessor(t, runner, NewTextExtractor())
		res := p.Process(context.Background(), "a.pdf", []byte("this is not a pdf at all"))
		if res.Err != ErrPDFCorrupted {
			t.Errorf("got %v", res.Err)
		}
		if runner.calls != 0 {
			t.Errorf("render should not run for an unparsable document")
		}
	})
}

func TestPageNumberOf(t *testing.T) {
	tests := []struct {
		file string
		want int
		ok   bool
	}{
		{"/tmp/x/page-3.png", 3, true},
		{"/tmp/x/page-07.png", 7, true},
		{"/tmp/x/page-012.png", 12, true},
		{"/tmp/x/page-abc.png", 0, false},
	}
	for _, tt := range tests {
		got, ok := pageNumberOf("/tmp/x/page", tt.file)
		if got != tt.want || ok != tt.ok {
			t.Errorf("pageNumberOf(%q) = %d/%v, want %d/%v", tt.file, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIsPasswordError(t *testing.T) {
	if !isPasswordError(errors.New("file is Encrypted")) {
		t.Errorf("encrypt message should count")
	}
	if isPasswordError(errors.New("malformed xref")) {
		t.Errorf("plain parse error should not count")
	}
}
