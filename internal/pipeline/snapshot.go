package pipeline

import (
	"time"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

// Snapshot is a read-only copy of a session, safe to use after the session
// lock is released.
type Snapshot struct {
	ID          string              `json:"id"`
	Stage       constants.Stage     `json:"stage"`
	StageIndex  int                 `json:"stage_index"`
	Mode        constants.Mode      `json:"mode"`
	Error       string              `json:"error,omitempty"`
	ErrorCode   string              `json:"error_code,omitempty"`
	Image       *entity.Image       `json:"image,omitempty"`
	RawText     string              `json:"raw_text"`
	EditedText  string              `json:"edited_text"`
	Result      *llm.AnalysisResult `json:"result,omitempty"`
	Progress    int                 `json:"progress"`
	Confidence  float32             `json:"confidence,omitempty"`
	Recognizing bool                `json:"recognizing"`
	Analyzing   bool                `json:"analyzing"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Snapshot copies the session. Image bytes are not included.
func (s *Session) Snapshot() Snapshot {
	raw, edited := s.Texts()
	snap := Snapshot{
		ID:          s.ID,
		Stage:       s.Stage(),
		StageIndex:  s.Stage().Index(),
		Mode:        s.Mode,
		Error:       s.Error,
		ErrorCode:   s.ErrorCode,
		RawText:     raw,
		EditedText:  edited,
		Result:      s.Result(),
		Progress:    s.progress,
		Confidence:  s.confidence,
		Recognizing: s.recognition.inFlight,
		Analyzing:   s.analysis.inFlight,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if img, ok := s.Image(); ok {
		img.Data = nil
		snap.Image = &img
	}
	return snap
}
