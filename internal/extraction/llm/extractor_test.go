package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rm "github.com/akolanti/MedExtract/internal/domain/reportModel"
)

type mockProvider struct {
	calls      atomic.Int32
	OnComplete func(ctx context.Context, req Request) (Response, error)
}

func (m *mockProvider) Name() string { return "mock" }
func (m *mockProvider) Complete(ctx context.Context, req Request) (Response, error) {
	m.calls.Add(1)
	return m.OnComplete(ctx, req)
}

func newTestExtractor(p Provider) *Extractor {
	e := NewExtractor(p, Options{Concurrency: 4, MaxRetries: 1})
	e.backoff = func(int) time.Duration { return 0 }
	return e
}

func textPages(texts ...string) []*rm.Page {
	pages := make([]*rm.Page, len(texts))
	for i, t := range texts {
		pages[i] = &rm.Page{Number: i + 1, Mode: rm.ModeText, RawText: t}
	}
	return pages
}

func TestExtract_NoFieldsNoCall(t *testing.T) {
	p := &mockProvider{OnComplete: func(ctx context.Context, req Request) (Response, error) {
		t.Fatal("provider must not be called")
		return Response{}, nil
	}}
	data, note, in, out := newTestExtractor(p).Extract(context.Background(), nil, textPages("x"), rm.ModeText)
	if len(data) != 0 || note != "" || in != 0 || out != 0 {
		t.Errorf("got %v %q %d %d", data, note, in, out)
	}
}

func TestExtract_MockMode(t *testing.T) {
	e := NewExtractor(&mockProvider{}, Options{Concurrency: 1, Mock: true})
	data, note, _, _ := e.Extract(context.Background(), []string{rm.Haemoglobin}, textPages("x"), rm.ModeText)
	if len(data) != 0 || note != NoteMock {
		t.Errorf("got %v %q", data, note)
	}
}

func TestExtract_TextPrompt(t *testing.T) {
	var got Request
	p := &mockProvider{OnComplete: func(ctx context.Context, req Request) (Response, error) {
		got = req
		return Response{Text: `{"Haemoglobin": "12.6", "Haemoglobin_Flag": "LOW"}`, InputTokens: 100, OutputTokens: 20}, nil
	}}
	data, note, in, out := newTestExtractor(p).Extract(context.Background(),
		[]string{rm.Haemoglobin, rm.TLC}, textPages("Hb 12.6 L", "TLC pending"), rm.ModeText)

	if note != "" || in != 100 || out != 20 {
		t.Errorf("note=%q in=%d out=%d", note, in, out)
	}
	if data[rm.Haemoglobin] != "12.6" || data[rm.FlagOf(rm.Haemoglobin)] != "LOW" {
		t.Errorf("data = %v", data)
	}
	if len(got.Images) != 0 {
		t.Errorf("text mode must not send images")
	}
	for _, want := range []string{
		"these 2 medical report pages",
		"  - Haemoglobin\n  - TLC",
		"PAGE TEXT:\n[PAGE 1]\nHb 12.6 L\n\n---PAGE BREAK---\n\n[PAGE 2]\nTLC pending",
	} {
		if !strings.Contains(got.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if got.System != systemPrompt {
		t.Errorf("system prompt not sent")
	}
}

func TestExtract_ImagePrompt(t *testing.T) {
	var got Request
	p := &mockProvider{OnComplete: func(ctx context.Context, req Request) (Response, error) {
		got = req
		return Response{Text: `{}`}, nil
	}}
	pages := []*rm.Page{
		{Number: 1, Mode: rm.ModeImage, Image: []byte("a")},
		{Number: 2, Mode: rm.ModeImage},
		{Number: 3, Mode: rm.ModeImage, Image: []byte("c")},
	}
	data, note, _, _ := newTestExtractor(p).Extract(context.Background(), []string{rm.XRAY}, pages, rm.ModeImage)
	if note != "" || len(data) != 0 {
		t.Errorf("an empty object is a successful answer, got %v %q", data, note)
	}
	if len(got.Images) != 2 {
		t.Fatalf("sent %d images, want 2", len(got.Images))
	}
	if !strings.Contains(got.Prompt, "these 2 medical report pages") ||
		!strings.Contains(got.Prompt, "2 PAGE IMAGES: (attached above, in page order)") {
		t.Errorf("prompt = %q", got.Prompt)
	}

	t.Run("single image", func(t *testing.T) {
		newTestExtractor(p).Extract(context.Background(), []string{rm.XRAY}, pages[:1], rm.ModeImage)
		if !strings.Contains(got.Prompt, "this medical report page") || !strings.Contains(got.Prompt, "PAGE IMAGE: (attached above)") {
			t.Errorf("prompt = %q", got.Prompt)
		}
	})
}

func TestExtract_Retry(t *testing.T) {
	t.Run("invalid JSON retries without backoff", func(t *testing.T) {
		p := &mockProvider{}
		p.OnComplete = func(ctx context.Context, req Request) (Response, error) {
			if p.calls.Load() == 1 {
				return Response{Text: "sorry, I cannot", InputTokens: 10, OutputTokens: 3}, nil
			}
			return Response{Text: "```json\n{\"ESR\": 12}\n```", InputTokens: 11, OutputTokens: 4}, nil
		}
		e := newTestExtractor(p)
		e.backoff = func(int) time.Duration {
			t.Error("JSON errors must not back off")
			return 0
		}
		data, note, in, out := e.Extract(context.Background(), []string{rm.ESR}, textPages("x"), rm.ModeText)
		if note != "" || data[rm.ESR] != 12.0 {
			t.Errorf("data=%v note=%q", data, note)
		}
		if in != 21 || out != 7 {
			t.Errorf("tokens must accumulate across attempts, got %d/%d", in, out)
		}
	})

	t.Run("transport error backs off", func(t *testing.T) {
		p := &mockProvider{}
		p.OnComplete = func(ctx context.Context, req Request) (Response, error) {
			if p.calls.Load() == 1 {
				return Response{}, errors.New("connection reset")
			}
			return Response{Text: `{"ESR": "20"}`, InputTokens: 5, OutputTokens: 2}, nil
		}
		e := newTestExtractor(p)
		var backoffs int
		e.backoff = func(int) time.Duration { backoffs++; return 0 }
		_, note, _, _ := e.Extract(context.Background(), []string{rm.ESR}, textPages("x"), rm.ModeText)
		if note != "" || backoffs != 1 {
			t.Errorf("note=%q backoffs=%d", note, backoffs)
		}
	})

	t.Run("exhaustion", func(t *testing.T) {
		p := &mockProvider{OnComplete: func(ctx context.Context, req Request) (Response, error) {
			return Response{Text: "[1,2]", InputTokens: 7, OutputTokens: 1}, nil
		}}
		data, note, in, out := newTestExtractor(p).Extract(context.Background(), []string{rm.ESR}, textPages("x"), rm.ModeText)
		if len(data) != 0 || note != NoteAPIError {
			t.Errorf("data=%v note=%q", data, note)
		}
		if p.calls.Load() != 2 || in != 14 || out != 2 {
			t.Errorf("calls=%d in=%d out=%d", p.calls.Load(), in, out)
		}
	})
}

func TestExtract_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	p := &mockProvider{OnComplete: func(ctx context.Context, req Request) (Response, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return Response{Text: `{}`}, nil
	}}
	e := NewExtractor(p, Options{Concurrency: 2, MaxRetries: 1})

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Extract(context.Background(), []string{rm.ESR}, textPages("x"), rm.ModeText)
		}()
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Errorf("peak in-flight calls = %d, want <= 2", peak.Load())
	}
}

func TestNormalize(t *testing.T) {
	data, err := parseResponse(`{
		"Haemoglobin": {"value": "12.6", "flag": "LOW"},
		"TLC": {"value": 11000, "flag": null},
		"ESR": [1, 2],
		"MCV": {"unit": "fL"},
		"MCHC": {"value": [33.1], "flag": "L"},
		"MCH": {"value": {"amount": 29}},
		"Platelet_Count": "250000",
		"Platelet_Count_Flag": null
	}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data[rm.Haemoglobin] != "12.6" || data[rm.FlagOf(rm.Haemoglobin)] != "LOW" {
		t.Errorf("nested value/flag not flattened: %v", data)
	}
	if data[rm.TLC] != 11000.0 {
		t.Errorf("TLC = %v", data[rm.TLC])
	}
	if _, ok := data[rm.FlagOf(rm.TLC)]; ok {
		t.Errorf("a nil nested flag should not create a key")
	}
	if _, ok := data[rm.ESR]; ok {
		t.Errorf("array values are dropped")
	}
	if _, ok := data[rm.MCV]; ok {
		t.Errorf("objects without value are dropped")
	}
	for _, field := range []string{rm.MCHC, rm.FlagOf(rm.MCHC), rm.MCH} {
		if _, ok := data[field]; ok {
			t.Errorf("%s: nested arrays and objects are dropped with their flag, got %v", field, data[field])
		}
	}
	if data[rm.PlateletCount] != "250000" {
		t.Errorf("flat value kept, got %v", data[rm.PlateletCount])
	}

	t.Run("rejects non-objects", func(t *testing.T) {
		for _, raw := range []string{`"text"`, `[{}]`, `42`, ``} {
			if _, err := parseResponse(raw); err == nil {
				t.Errorf("parseResponse(%q) should fail", raw)
			}
		}
	})
}

func TestOpenAIProvider(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"Haemoglobin\": \"13.1\"}"}}],
			"usage": {"prompt_tokens": 812, "completion_tokens": 24, "total_tokens": 836}
		}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", srv.URL+"/v1/", "", srv.Client())
	resp, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "extract", Images: [][]byte{[]byte("png")}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != `{"Haemoglobin": "13.1"}` || resp.InputTokens != 812 || resp.OutputTokens != 24 {
		t.Errorf("resp = %+v", resp)
	}
	if body["model"] != "gpt-4o" || body["max_tokens"] != 4096.0 {
		t.Errorf("model=%v max_tokens=%v", body["model"], body["max_tokens"])
	}
	raw, _ := json.Marshal(body["messages"])
	if !strings.Contains(string(raw), "data:image/png;base64,cG5n") || !strings.Contains(string(raw), `"detail":"high"`) {
		t.Errorf("image part missing: %s", raw)
	}

	t.Run("http error surfaces", func(t *testing.T) {
		fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error": {"message": "rate limited", "type": "requests"}}`)
		}))
		defer fail.Close()
		p := NewOpenAIProvider("k", fail.URL+"/v1/", "", fail.Client())
		if _, err := p.Complete(context.Background(), Request{Prompt: "x"}); err == nil {
			t.Errorf("expected an error for 429")
		}
	})
}
