//go:build gosseract

package ocr

import (
	"context"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	register("gosseract", func(opts Options) Engine { return &GosseractEngine{} })
}

// GosseractEngine runs tesseract in process through its C API.
type GosseractEngine struct{}

func (e *GosseractEngine) Name() string {
	return "gosseract"
}

func (e *GosseractEngine) Recognize(ctx context.Context, png []byte) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", 0, err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return "", 0, err
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	text, err := client.Text()
	if err != nil {
		return "", 0, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return "", 0, err
	}

	var total float64
	var count int
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" || b.Confidence < 0 {
			continue
		}
		total += b.Confidence / 100
		count++
	}
	if count == 0 {
		return strings.TrimSpace(text), 0, nil
	}
	return strings.TrimSpace(text), total / float64(count), nil
}
