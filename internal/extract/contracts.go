package extract

import (
	"context"

	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/ocr"
)

// TextExtractor is the OCR stage: image -> text. *ocr.Extractor implements it.
type TextExtractor interface {
	Extract(ctx context.Context, img entity.Image, progress func(int)) (ocr.ExtractionResult, error)
}

// Recognizer runs a recognition asynchronously and streams its progress.
//
// Progress never decreases and stays within 0..100. The last event has Done
// set and carries either Text or an Err wrapping common.ErrRecognitionFailed.
// Cancelling ctx abandons the run: the channel closes without a final event.
type Recognizer interface {
	Recognize(ctx context.Context, img entity.Image) <-chan Event
}

type Event struct {
	Progress   int
	Text       string
	Confidence float32
	Done       bool
	Err        error
}
