package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/constants"
	"github.com/joseph-ayodele/labelscan/internal/common"
)

var (
	reJSONFence = regexp.MustCompile("(?s)```json[ \\t]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")
	reAnyFence  = regexp.MustCompile("(?s)```[^\\n`]*\\r?\\n(.*?)\\r?\\n[ \\t]*```")
)

// MalformedResponseError keeps the model output that could not be parsed.
type MalformedResponseError struct {
	Raw    string
	Reason error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed analysis response: %v", e.Reason)
}

func (e *MalformedResponseError) Unwrap() []error {
	return []error{common.ErrMalformedResponse, e.Reason}
}

// LocateJSON picks the candidate document out of raw model output: a ```json
// fenced block, else any fenced block, else the whole trimmed text.
func LocateJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := reJSONFence.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reAnyFence.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// ParseAnalysis extracts the analysis document from raw model output. Only
// structure is checked: the document must be a JSON object carrying
// health_score and breakdown. Extension fields not belonging to mode are dropped.
func ParseAnalysis(raw string, mode constants.Mode) (*AnalysisResult, error) {
	return parseAnalysis(raw, mode, nil)
}

// ParseAnalysisWithLogger is ParseAnalysis with normalisation and dropped
// fields reported to logger.
func ParseAnalysisWithLogger(raw string, mode constants.Mode, logger *zap.Logger) (*AnalysisResult, error) {
	return parseAnalysis(raw, mode, logger)
}

func parseAnalysis(raw string, mode constants.Mode, logger *zap.Logger) (*AnalysisResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	malformed := func(reason error) error {
		return &MalformedResponseError{Raw: raw, Reason: reason}
	}

	candidate := LocateJSON(raw)
	if candidate == "" {
		return nil, malformed(fmt.Errorf("empty output"))
	}
	if !json.Valid([]byte(candidate)) {
		return nil, malformed(fmt.Errorf("candidate is not valid json"))
	}

	doc, _, err := NormalizeAnalysisJSON([]byte(candidate), logger)
	if err != nil {
		return nil, malformed(err)
	}
	if err := CheckRequired(doc); err != nil {
		return nil, malformed(err)
	}

	var w analysisWire
	dec := json.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&w); err != nil {
		return nil, malformed(fmt.Errorf("decode: %w", err))
	}

	res, dropped := w.toResult(mode)
	if len(dropped) > 0 {
		logger.Warn("llm.parse.foreign_mode_fields_dropped",
			zap.String("mode", string(mode)),
			zap.Strings("dropped", dropped),
		)
	}
	return res, nil
}
