package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
)

type OCRAdapter struct {
	extractor TextExtractor
	logger    *zap.Logger
}

func NewOCRAdapter(e TextExtractor, l *zap.Logger) *OCRAdapter {
	if l == nil {
		l = zap.NewNop()
	}
	return &OCRAdapter{
		extractor: e,
		logger:    l,
	}
}

func (a *OCRAdapter) Recognize(ctx context.Context, img entity.Image) <-chan Event {
	events := make(chan Event, 8)
	go func() {
		defer close(events)
		last := 0
		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		r, err := a.extractor.Extract(ctx, img, func(pct int) {
			if pct > 100 {
				pct = 100
			}
			if pct <= last {
				return
			}
			last = pct
			send(Event{Progress: pct})
		})
		if ctx.Err() != nil {
			a.logger.Debug("extract.recognize.abandoned", zap.Error(ctx.Err()))
			return
		}
		if err != nil {
			a.logger.Warn("extract.recognize.failed", zap.Error(err))
			send(Event{
				Progress: last,
				Done:     true,
				Err: common.NewAppError(common.CodeRecognitionFailed,
					common.UserMessage(common.ErrRecognitionFailed),
					fmt.Errorf("%w: %w", common.ErrRecognitionFailed, err)),
			})
			return
		}
		send(Event{Progress: 100, Text: r.Text, Confidence: r.Confidence, Done: true})
	}()
	return events
}
