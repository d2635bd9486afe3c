package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/entity"
)

type Config struct {
	Engine    string // "tesseract" (default) | "gosseract"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "eng"
	TessdataDir string

	HeicConverter string // "heif-convert" | "magick" | "sips"

	PSM int // 6 suits a uniform block of text, which most ingredient panels are

	Preprocess   bool
	Binarize     bool
	MaxDimension int // longest edge after preprocessing, 0 = keep
}

type ExtractionResult struct {
	Text       string
	Method     string // engine name
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

// Progress checkpoints reported by Extract.
const (
	ProgressStarted      = 5
	ProgressDecoded      = 20
	ProgressPreprocessed = 35
	ProgressRecognized   = 90
	ProgressDone         = 100
)

var ErrEmptyImage = errors.New("ocr: empty image")

type Extractor struct {
	cfg    Config
	runner Runner
	engine Engine
	logger *zap.Logger
}

type Option func(*Extractor)

// WithRunner replaces the external command runner (tests, sandboxes).
func WithRunner(r Runner) Option {
	return func(e *Extractor) { e.runner = r }
}

// WithEngine replaces the recognition engine chosen from Config.Engine.
func WithEngine(engine Engine) Option {
	return func(e *Extractor) { e.engine = engine }
}

func NewExtractor(cfg Config, logger *zap.Logger, opts ...Option) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineTesseract
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	e := &Extractor{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = execRunner{logger: logger}
	}
	if e.engine == nil {
		engine, err := newEngine(cfg, e.runner)
		if err != nil {
			return nil, err
		}
		e.engine = engine
	}
	return e, nil
}

func (e *Extractor) Language() string { return e.cfg.Language }

// Extract recognizes the text on a label image. progress, when non-nil, is
// called with increasing percentages between steps.
func (e *Extractor) Extract(ctx context.Context, img entity.Image, progress func(int)) (ExtractionResult, error) {
	start := time.Now()
	report := func(pct int) {
		if progress != nil {
			progress(pct)
		}
	}
	res := ExtractionResult{Method: e.engine.Name(), Language: e.cfg.Language}
	if img.Empty() {
		return res, ErrEmptyImage
	}
	e.logger.Debug("ocr.extract.start",
		zap.String("mime", img.MIMEType),
		zap.Int("bytes", img.Size),
		zap.String("engine", e.engine.Name()))
	report(ProgressStarted)

	data := img.Data
	if constants.IsHEIC(img.MIMEType) {
		png, warns, err := convertHEIC(ctx, e.runner, e.logger, e.cfg.HeicConverter, data)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil {
			e.logger.Error("ocr.heic.failed", zap.Error(err))
			return res, err
		}
		data = png
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	decoded, err := decode(data)
	if err != nil {
		return res, fmt.Errorf("decode image: %w", err)
	}
	report(ProgressDecoded)

	if e.cfg.Preprocess {
		decoded = preprocess(decoded, e.cfg.MaxDimension, e.cfg.Binarize)
	}
	prepared, err := encodePNG(decoded)
	if err != nil {
		return res, fmt.Errorf("encode image: %w", err)
	}
	report(ProgressPreprocessed)
	if err := ctx.Err(); err != nil {
		return res, err
	}

	raw, engineConf, err := e.engine.Recognize(ctx, prepared)
	if err != nil {
		return res, fmt.Errorf("%s: %w", e.engine.Name(), err)
	}
	report(ProgressRecognized)

	res.Text = Normalize(raw)
	res.Confidence = blendConfidence(engineConf, heuristicConfidence(res.Text))
	res.Duration = time.Since(start)
	report(ProgressDone)

	e.logger.Info("ocr.extract.ok",
		zap.String("engine", e.engine.Name()),
		zap.Int("chars", len(res.Text)),
		zap.Float32("confidence", res.Confidence),
		zap.Int64("elapsed_ms", res.Duration.Milliseconds()))
	return res, nil
}
