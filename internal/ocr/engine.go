package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	EngineTesseract = "tesseract"
	EngineGosseract = "gosseract"
)

// Engine turns a preprocessed PNG into raw text. Confidence is the engine's
// own mean word confidence in 0..1, or 0 when it has none.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, png []byte) (text string, confidence float32, err error)
}

func newEngine(cfg Config, r Runner) (Engine, error) {
	switch cfg.Engine {
	case EngineTesseract:
		return &cliEngine{cfg: cfg, runner: r}, nil
	case EngineGosseract:
		return newGosseractEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}

// cliEngine shells out to the tesseract binary.
type cliEngine struct {
	cfg    Config
	runner Runner
}

func (c *cliEngine) Name() string { return EngineTesseract }

func (c *cliEngine) Recognize(ctx context.Context, png []byte) (string, float32, error) {
	dir, err := os.MkdirTemp("", "labelscan-ocr-*")
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "label.png")
	if err := os.WriteFile(path, png, 0o600); err != nil {
		return "", 0, err
	}

	// tesseract <file> stdout -l <lang> [--psm N]
	out, errb, err := c.runner.Run(ctx, c.cfg.Tesseract, c.args(path)...)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %s", err, strings.TrimSpace(truncate(string(errb), 512)))
	}
	txt := reBoxNoise.ReplaceAllString(string(out), "")

	conf, err := c.tsvConfidence(ctx, path)
	if err != nil {
		// text is still usable without the engine score
		conf = 0
	}
	return txt, conf, nil
}

func (c *cliEngine) args(path string, extra ...string) []string {
	args := []string{path, "stdout", "-l", c.cfg.Language}
	if c.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(c.cfg.PSM))
	}
	if c.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", c.cfg.TessdataDir)
	}
	return append(args, extra...)
}

// tsvConfidence runs tesseract in TSV mode and returns mean word conf in 0..1.
func (c *cliEngine) tsvConfidence(ctx context.Context, path string) (float32, error) {
	out, _, err := c.runner.Run(ctx, c.cfg.Tesseract, c.args(path, "tsv")...)
	if err != nil {
		return 0, fmt.Errorf("tesseract TSV: %w", err)
	}
	return meanTSVConfidence(string(out)), nil
}

func meanTSVConfidence(tsv string) float32 {
	var sum, n float64
	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		confStr := cols[10]
		if confStr == "" || confStr == "-1" || strings.TrimSpace(cols[11]) == "" {
			continue
		}
		if v, err := strconv.ParseFloat(confStr, 64); err == nil {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100.0)
}
