package pipeline

import (
	"strings"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

// AnalysisInput is what an analysis job needs, copied out of the session.
type AnalysisInput struct {
	Text string
	Mode constants.Mode
}

func busy(what string) error {
	return common.NewAppError(common.CodeBusy, what+" is already running", common.ErrBusy)
}

func stale() error {
	return common.NewAppError(common.CodeStaleResponse, "response belongs to a superseded request", common.ErrStaleResponse)
}

// BeginRecognition marks a recognition as in flight and returns its token
// together with the image to recognize.
func (s *Session) BeginRecognition() (Token, entity.Image, error) {
	st, ok := s.state.(ExtractState)
	if !ok {
		return 0, entity.Image{}, invalidTransition("extract", s.Stage())
	}
	if s.recognition.inFlight {
		return 0, entity.Image{}, busy("text recognition")
	}
	t := s.nextToken()
	s.recognition = operation{token: t, inFlight: true}
	s.progress, s.confidence = 0, 0
	s.ClearError()
	s.touch()
	return t, st.Image, nil
}

// RecordProgress stores recognition progress for token, clamped to 0..100
// and never moving backwards. Stale tokens are ignored.
func (s *Session) RecordProgress(t Token, pct int) bool {
	if !s.recognition.accepts(t) {
		return false
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > s.progress {
		s.progress = pct
		s.touch()
	}
	return true
}

// CompleteRecognition applies the recognized text when t is current.
func (s *Session) CompleteRecognition(t Token, text string, confidence float32) error {
	if !s.recognition.accepts(t) {
		return stale()
	}
	s.recognition.inFlight = false
	s.progress = 100
	s.confidence = confidence
	return s.TextExtracted(text)
}

// FailRecognition reports err when t is current and ends the operation.
func (s *Session) FailRecognition(t Token, err error) error {
	if !s.recognition.accepts(t) {
		return stale()
	}
	s.recognition.inFlight = false
	s.ReportErr(err)
	return nil
}

// BeginAnalysis marks an analysis as in flight. Empty edited text is reported
// as EMPTY_TEXT; a second submission while one is running is rejected.
func (s *Session) BeginAnalysis() (Token, AnalysisInput, error) {
	st, ok := s.state.(AnalyzeState)
	if !ok {
		return 0, AnalysisInput{}, invalidTransition("analyze", s.Stage())
	}
	if s.analysis.inFlight {
		return 0, AnalysisInput{}, busy("analysis")
	}
	if strings.TrimSpace(st.EditedText) == "" {
		err := common.NewAppError(common.CodeEmptyText,
			common.UserMessage(common.ErrEmptyText), common.ErrEmptyText)
		s.ReportErr(err)
		return 0, AnalysisInput{}, err
	}
	t := s.nextToken()
	s.analysis = operation{token: t, inFlight: true}
	s.pending = AnalysisInput{Text: st.EditedText, Mode: s.Mode}
	s.ClearError()
	s.touch()
	return t, s.pending, nil
}

// PendingRecognition returns the image a recognition started with, or
// ErrStaleResponse when t is no longer current.
func (s *Session) PendingRecognition(t Token) (entity.Image, error) {
	if !s.recognition.accepts(t) {
		return entity.Image{}, stale()
	}
	img, _ := s.Image()
	return img, nil
}

// PendingAnalysis returns the input captured by BeginAnalysis for t. Edits
// made while the analysis runs do not leak into it.
func (s *Session) PendingAnalysis(t Token) (AnalysisInput, error) {
	if !s.analysis.accepts(t) {
		return AnalysisInput{}, stale()
	}
	return s.pending, nil
}

// CompleteAnalysis applies result when t is current.
func (s *Session) CompleteAnalysis(t Token, result *llm.AnalysisResult) error {
	if !s.analysis.accepts(t) {
		return stale()
	}
	s.analysis.inFlight = false
	s.pending = AnalysisInput{}
	return s.AnalysisComplete(result)
}

// FailAnalysis reports err when t is current and ends the operation.
func (s *Session) FailAnalysis(t Token, err error) error {
	if !s.analysis.accepts(t) {
		return stale()
	}
	s.analysis.inFlight = false
	s.pending = AnalysisInput{}
	s.ReportErr(err)
	return nil
}
