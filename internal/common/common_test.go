package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labelscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_addr: ":9000"
ocr:
  engine: gosseract
  psm: 4
llm:
  model: gemini-from-yaml
session:
  workers: 2
`), 0o600))

	t.Setenv("LABELSCAN_CONFIG", path)
	t.Setenv("GEMINI_MODEL", "gemini-from-env")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("HTTP_ADDR", "9100")
	t.Setenv("JOB_TIMEOUT", "90s")
	t.Setenv("OCR_PREPROCESS", "false")
	t.Setenv("WORKERS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.HTTPAddr)
	assert.Equal(t, "gosseract", cfg.OCR.Engine)
	assert.Equal(t, 4, cfg.OCR.PSM)
	assert.False(t, cfg.OCR.Preprocess)
	assert.Equal(t, "gemini-from-env", cfg.LLM.Model)
	assert.Equal(t, "k", cfg.LLM.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Session.JobTimeout)
	assert.Equal(t, 2, cfg.Session.Workers, "unparsable env values keep the previous layer")
	assert.Equal(t, "eng", cfg.OCR.Language)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("LABELSCAN_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Equal(t, CodeConfig, Code(err))
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OCR.Engine = "easyocr"
	cfg.Session.Workers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Engine")
	assert.Contains(t, err.Error(), "Workers")
}

func TestCodeAndStatus(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewAppError(CodeNotFound, "session not found", ErrNotFound), CodeNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", ErrBusy), CodeBusy, http.StatusConflict},
		{ErrAuthMissing, CodeAuthMissing, http.StatusPreconditionFailed},
		{NewAppError(CodeRequestFailed, "status 500", ErrRequestFailed), CodeRequestFailed, http.StatusBadGateway},
		{ValidationErrors{{Field: "Mode", Message: "is required"}}, CodeInvalidInput, http.StatusBadRequest},
		{ErrQueueFull, CodeQueueFull, http.StatusServiceUnavailable},
		{errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, Code(tc.err), tc.err.Error())
		assert.Equal(t, tc.status, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t,
		"No text was extracted from the image. Please try with a clearer image of a food label.",
		UserMessage(ErrEmptyExtraction))
	assert.Equal(t,
		"Failed to analyze ingredients: API request failed with status 401: denied. Please check your API key and try again.",
		UserMessage(NewAppError(CodeRequestFailed, "API request failed with status 401: denied", ErrRequestFailed)))
	assert.Equal(t,
		"Failed to analyze ingredients: No response from Gemini API. Please check your API key and try again.",
		UserMessage(ErrEmptyCandidate))
	assert.Equal(t, "custom", UserMessage(NewAppError(CodeInvalidInput, "custom", ErrInvalidInput)))
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		Name string `validate:"required,notblank"`
		Mode string `validate:"omitempty,oneof=a b"`
	}
	require.NoError(t, ValidateStruct(req{Name: "x"}))

	err := ValidateStruct(req{Name: "  ", Mode: "c"})
	require.ErrorIs(t, err, ErrValidation)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 2)
	assert.Equal(t, "is required", verrs[0].Message)
	assert.Equal(t, "must be one of: a b", verrs[1].Message)

	wrapped := ValidateAndReturnError(req{})
	assert.Equal(t, CodeInvalidInput, Code(wrapped))
}

func TestContextValues(t *testing.T) {
	ctx := WithSessionID(WithRequestID(context.Background(), "req-1"), "sess-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "sess-1", SessionIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}
