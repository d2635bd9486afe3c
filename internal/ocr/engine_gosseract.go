//go:build gosseract

package ocr

import (
	"context"

	"github.com/otiai10/gosseract/v2"
)

// gosseractEngine uses the libtesseract binding. A client is created per call
// because gosseract clients are not safe for concurrent use.
type gosseractEngine struct {
	cfg Config
}

func newGosseractEngine(cfg Config) (Engine, error) {
	return &gosseractEngine{cfg: cfg}, nil
}

func (g *gosseractEngine) Name() string { return EngineGosseract }

func (g *gosseractEngine) Recognize(ctx context.Context, png []byte) (string, float32, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if g.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return "", 0, err
		}
	}
	if err := client.SetLanguage(g.cfg.Language); err != nil {
		return "", 0, err
	}
	if g.cfg.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return "", 0, err
		}
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

	var conf float32
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		var sum float64
		for _, b := range boxes {
			sum += b.Confidence
		}
		conf = float32(sum / float64(len(boxes)) / 100.0)
	}
	return text, conf, ctx.Err()
}
