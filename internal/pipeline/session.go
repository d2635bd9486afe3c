package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

// Token identifies one asynchronous operation. Tokens only grow within a
// session, so a completion carrying an older token is stale.
type Token uint64

// operation tracks the single in-flight recognition or analysis.
type operation struct {
	token    Token
	inFlight bool
}

func (o operation) accepts(t Token) bool { return o.inFlight && o.token == t }

// Session is one end-to-end user interaction. It performs no I/O; callers
// must serialise access (see repository.SessionRepository.Update).
type Session struct {
	ID        string
	Mode      constants.Mode
	Error     string
	ErrorCode string
	CreatedAt time.Time
	UpdatedAt time.Time

	state State

	lastToken   Token
	recognition operation
	analysis    operation
	pending     AnalysisInput
	progress    int
	confidence  float32
}

// NewSession returns a session in the upload stage.
func NewSession(id string, mode constants.Mode) *Session {
	if !mode.Valid() {
		mode = constants.ModeGeneral
	}
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Mode:      mode,
		CreatedAt: now,
		UpdatedAt: now,
		state:     UploadState{},
	}
}

func (s *Session) State() State           { return s.state }
func (s *Session) Stage() constants.Stage { return s.state.Stage() }
func (s *Session) Progress() int          { return s.progress }
func (s *Session) Recognizing() bool      { return s.recognition.inFlight }
func (s *Session) Analyzing() bool        { return s.analysis.inFlight }

func (s *Session) touch() { s.UpdatedAt = time.Now().UTC() }

func (s *Session) invalidateOperations() {
	s.recognition = operation{}
	s.analysis = operation{}
	s.pending = AnalysisInput{}
}

func (s *Session) nextToken() Token {
	s.lastToken++
	return s.lastToken
}

// Image returns the captured image, if any.
func (s *Session) Image() (entity.Image, bool) {
	switch st := s.state.(type) {
	case ExtractState:
		return st.Image, true
	case AnalyzeState:
		return st.Image, true
	case ResultsState:
		return st.Image, true
	}
	return entity.Image{}, false
}

// Texts returns the recognized and edited text; both empty before recognition.
func (s *Session) Texts() (raw, edited string) {
	switch st := s.state.(type) {
	case AnalyzeState:
		return st.RawText, st.EditedText
	case ResultsState:
		return st.RawText, st.EditedText
	}
	return "", ""
}

// Result returns the analysis result when in the results stage.
func (s *Session) Result() *llm.AnalysisResult {
	if st, ok := s.state.(ResultsState); ok {
		return st.Result
	}
	return nil
}

func invalidTransition(op string, from constants.Stage) error {
	return common.NewAppError(common.CodeInvalidTransition,
		fmt.Sprintf("%s is not allowed in the %s stage", op, from),
		common.ErrInvalidTransition)
}

// CaptureImage stores a new image and moves to the extract stage. Valid from
// any stage; everything derived from a previous image is discarded.
func (s *Session) CaptureImage(img entity.Image) error {
	if img.Empty() {
		return common.NewAppError(common.CodeInvalidInput, "image is empty", common.ErrInvalidInput)
	}
	s.state = ExtractState{Image: img}
	s.ClearError()
	s.invalidateOperations()
	s.progress, s.confidence = 0, 0
	s.touch()
	return nil
}

// TextExtracted records recognized text. Whitespace-only text is reported as
// EMPTY_EXTRACTION and the session stays in the extract stage.
func (s *Session) TextExtracted(text string) error {
	st, ok := s.state.(ExtractState)
	if !ok {
		return invalidTransition("textExtracted", s.Stage())
	}
	if strings.TrimSpace(text) == "" {
		err := common.NewAppError(common.CodeEmptyExtraction,
			common.UserMessage(common.ErrEmptyExtraction), common.ErrEmptyExtraction)
		s.ReportErr(err)
		return err
	}
	s.state = AnalyzeState{Image: st.Image, RawText: text, EditedText: text}
	s.ClearError()
	s.touch()
	return nil
}

// EditText replaces the edited text; the stage does not change.
func (s *Session) EditText(text string) error {
	st, ok := s.state.(AnalyzeState)
	if !ok {
		return invalidTransition("editText", s.Stage())
	}
	st.EditedText = text
	s.state = st
	s.touch()
	return nil
}

// AnalysisComplete stores result and moves to the results stage. A missing
// or empty result is reported as EMPTY_RESULT and the stage stays analyze.
func (s *Session) AnalysisComplete(result *llm.AnalysisResult) error {
	st, ok := s.state.(AnalyzeState)
	if !ok {
		return invalidTransition("analysisComplete", s.Stage())
	}
	if result.IsZero() {
		err := common.NewAppError(common.CodeEmptyResult,
			common.UserMessage(common.ErrEmptyResult), common.ErrEmptyResult)
		s.ReportErr(err)
		return err
	}
	s.state = ResultsState{Image: st.Image, RawText: st.RawText, EditedText: st.EditedText, Result: result}
	s.ClearError()
	s.touch()
	return nil
}

// ReportError sets a user-visible message. The stage never changes.
func (s *Session) ReportError(message string) {
	s.Error = message
	s.ErrorCode = ""
	s.touch()
}

// ReportErr sets the user-visible message and code derived from err.
func (s *Session) ReportErr(err error) {
	if err == nil {
		return
	}
	s.Error = common.UserMessage(err)
	s.ErrorCode = common.Code(err)
	s.touch()
}

func (s *Session) ClearError() {
	s.Error = ""
	s.ErrorCode = ""
}

// ChangeMode selects a new analysis mode. A present result belongs to the old
// mode, so it is dropped and the session returns to the analyze stage.
func (s *Session) ChangeMode(mode constants.Mode) error {
	if !mode.Valid() {
		return common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("unknown mode %q", mode), common.ErrInvalidInput)
	}
	if s.analysis.inFlight {
		return common.NewAppError(common.CodeBusy, "mode cannot change while an analysis is running", common.ErrBusy)
	}
	s.Mode = mode
	if st, ok := s.state.(ResultsState); ok {
		s.state = AnalyzeState{Image: st.Image, RawText: st.RawText, EditedText: st.EditedText}
	}
	s.touch()
	return nil
}

// Reset returns to the upload stage. Mode is kept as a user preference.
// Pending operations are invalidated so their late results are discarded.
func (s *Session) Reset() {
	s.state = UploadState{}
	s.ClearError()
	s.invalidateOperations()
	s.progress, s.confidence = 0, 0
	s.touch()
}
