package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/akolanti/MedExtract/internal/customExec"
)

type renderer struct {
	runner  customExec.Runner
	path    string
	dpi     int
	tempDir string
}

// renderRange rasterizes pages first..last in one pdftoppm call and returns the PNG bytes of
// the wanted pages keyed by page number. Pages pdftoppm did not produce are simply absent.
func (r *renderer) renderRange(ctx context.Context, data []byte, first, last int, wanted map[int]bool) (map[int][]byte, error) {
	dir, err := os.MkdirTemp(r.tempDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("write render input: %w", err)
	}
	prefix := filepath.Join(dir, "page")

	_, errb, err := r.runner.Run(ctx, r.path,
		"-r", strconv.Itoa(r.dpi),
		"-png",
		"-f", strconv.Itoa(first),
		"-l", strconv.Itoa(last),
		in, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(errb)))
	}

	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}

	images := make(map[int][]byte, len(wanted))
	for _, file := range files {
		number, ok := pageNumberOf(prefix, file)
		if !ok || !wanted[number] {
			continue
		}
		png, err := os.ReadFile(file)
		if err != nil {
			logger.WithTrace(ctx).Warn("rendered page unreadable", "page", number, "error", err)
			continue
		}
		images[number] = png
	}
	return images, nil
}

// pdftoppm names its output prefix-N.png, zero padding N to the width of the last page.
func pageNumberOf(prefix, file string) (int, bool) {
	s := strings.TrimPrefix(file, prefix+"-")
	s = strings.TrimSuffix(s, ".png")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
