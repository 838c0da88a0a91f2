package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akolanti/MedExtract/internal/customExec"
)

type TesseractEngine struct {
	runner  customExec.Runner
	path    string
	tempDir string
}

func NewTesseractEngine(opts Options) *TesseractEngine {
	runner := opts.Runner
	if runner == nil {
		runner = customExec.NewRunner()
	}
	path := opts.TesseractPath
	if path == "" {
		path = "tesseract"
	}
	return &TesseractEngine{runner: runner, path: path, tempDir: opts.TempDir}
}

func (e *TesseractEngine) Name() string {
	return "tesseract"
}

func (e *TesseractEngine) Recognize(ctx context.Context, png []byte) (string, float64, error) {
	f, err := os.CreateTemp(e.tempDir, "ocr-*.png")
	if err != nil {
		return "", 0, fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(png); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp image: %w", err)
	}

	// tesseract <img> stdout --oem 3 --psm 6 tsv
	out, errb, err := e.runner.Run(ctx, e.path, filepath.Clean(f.Name()), "stdout", "--oem", "3", "--psm", "6", "tsv")
	if err != nil {
		return "", 0, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(errb)))
	}
	text, confidence := ParseTSV(out)
	return text, confidence, nil
}

type lineKey struct {
	block, par, line string
}

// ParseTSV rebuilds page text line by line from tesseract TSV output and
// returns the mean word confidence normalised to 0..1. Rows with conf -1
// or no text are layout rows and are skipped.
func ParseTSV(tsv []byte) (string, float64) {
	var order []lineKey
	lines := map[lineKey][]string{}
	var total float64
	var count int

	scanner := bufio.NewScanner(bytes.NewReader(tsv))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			if strings.HasPrefix(scanner.Text(), "level") {
				continue
			}
		}
		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 12 {
			continue
		}
		word := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil || conf == -1 || word == "" {
			continue
		}
		key := lineKey{block: cols[2], par: cols[3], line: cols[4]}
		if _, seen := lines[key]; !seen {
			order = append(order, key)
		}
		lines[key] = append(lines[key], word)
		total += conf / 100
		count++
	}

	rendered := make([]string, 0, len(order))
	for _, k := range order {
		rendered = append(rendered, strings.Join(lines[k], " "))
	}
	if count == 0 {
		return strings.Join(rendered, "\n"), 0
	}
	return strings.Join(rendered, "\n"), total / float64(count)
}
