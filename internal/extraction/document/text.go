package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/akolanti/MedExtract/internal/config"
	"github.com/dslipak/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	ErrEncrypted = errors.New("pdf is encrypted")
	ErrNoPages   = errors.New("pdf has no pages")
)

// TextExtractor returns the plain text of every page, indexed from page 1 at position 0.
// A page whose text cannot be read comes back empty; only whole-document failures are errors.
type TextExtractor interface {
	ExtractPages(ctx context.Context, data []byte) ([]string, error)
}

type pdfTextExtractor struct {
	pageTimeout time.Duration
}

func NewTextExtractor() TextExtractor {
	return &pdfTextExtractor{pageTimeout: config.PageTextTimeout}
}

func (e *pdfTextExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	log := logger.WithTrace(ctx)

	reader, err := openReader(data)
	if err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", ErrEncrypted, err)
		}
		log.Warn("pdf parse failed, attempting repair", "error", err)
		repaired, rerr := repair(data)
		if rerr != nil {
			if isPasswordError(rerr) {
				return nil, fmt.Errorf("%w: %v", ErrEncrypted, rerr)
			}
			return nil, fmt.Errorf("repair pdf: %w (original: %v)", rerr, err)
		}
		reader, err = openReader(repaired)
		if err != nil {
			return nil, fmt.Errorf("parse repaired pdf: %w", err)
		}
		log.Info("pdf repaired")
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, ErrNoPages
	}

	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := protectExtract(page, e.pageTimeout)
		if err != nil {
			log.Warn("page text extraction failed", "page", i, "error", err)
			continue
		}
		texts[i-1] = content
	}
	return texts, nil
}

// openReader parses data, turning parser panics on malformed input into errors.
func openReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = nil, fmt.Errorf("pdf parser panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func protectExtract(page pdf.Page, timeout time.Duration) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				resChan <- result{"", fmt.Errorf("panic: %v", rec)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-time.After(timeout):
		return "", errors.New("timeout")
	}
}

var disableConfigDir sync.Once

// repair rewrites the document with pdfcpu under relaxed validation, which fixes broken
// xref tables and stream lengths often produced by lab report printers.
func repair(data []byte) ([]byte, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func isPasswordError(err error) bool {
	if errors.Is(err, pdf.ErrInvalidPassword) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "password") || strings.Contains(msg, "encrypt")
}
