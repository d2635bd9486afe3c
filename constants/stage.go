package constants

// Stage is a position in the capture pipeline.
type Stage string

// Stable values (these exact strings are sent to clients).
const (
	StageUpload  Stage = "upload"  // waiting for an image
	StageExtract Stage = "extract" // image held, text not yet recognized
	StageAnalyze Stage = "analyze" // text available for editing and analysis
	StageResults Stage = "results" // analysis result available
)

// Index is the 0-based position used by the progress indicator.
func (s Stage) Index() int {
	switch s {
	case StageExtract:
		return 1
	case StageAnalyze:
		return 2
	case StageResults:
		return 3
	default:
		return 0
	}
}

func (s Stage) Label() string {
	switch s {
	case StageExtract:
		return "Extract Text"
	case StageAnalyze:
		return "Analyze"
	case StageResults:
		return "Results"
	default:
		return "Upload"
	}
}

var AllStages = []Stage{StageUpload, StageExtract, StageAnalyze, StageResults}
