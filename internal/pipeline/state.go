package pipeline

import (
	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/entity"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

// State is the stage-specific payload of a Session. Each variant carries
// exactly the data that is valid for its stage.
type State interface {
	Stage() constants.Stage
	isState()
}

// UploadState: nothing captured yet.
type UploadState struct{}

// ExtractState holds an image awaiting recognition.
type ExtractState struct {
	Image entity.Image
}

// AnalyzeState holds recognized text, possibly edited by the user.
type AnalyzeState struct {
	Image      entity.Image
	RawText    string
	EditedText string
}

// ResultsState holds a completed analysis.
type ResultsState struct {
	Image      entity.Image
	RawText    string
	EditedText string
	Result     *llm.AnalysisResult
}

func (UploadState) Stage() constants.Stage  { return constants.StageUpload }
func (ExtractState) Stage() constants.Stage { return constants.StageExtract }
func (AnalyzeState) Stage() constants.Stage { return constants.StageAnalyze }
func (ResultsState) Stage() constants.Stage { return constants.StageResults }

func (UploadState) isState()  {}
func (ExtractState) isState() {}
func (AnalyzeState) isState() {}
func (ResultsState) isState() {}
