package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/labelscan/internal/common"
	"github.com/joseph-ayodele/labelscan/internal/llm"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type generateRequest struct {
	Contents         []content            `json:"contents"`
	GenerationConfig llm.GenerationParams `json:"generationConfig"`
}

type candidate struct {
	Content      *content `json:"content"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// CheckCredentials reports AUTH_MISSING when no API key is configured.
func (c *Client) CheckCredentials() error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return common.NewAppError(common.CodeAuthMissing, "Gemini API key is missing", common.ErrAuthMissing)
	}
	return nil
}

// Submit sends prompt to generateContent and returns the first candidate's
// text. A single attempt is made; failures are returned to the caller as-is.
func (c *Client) Submit(ctx context.Context, prompt string) (string, error) {
	if err := c.CheckCredentials(); err != nil {
		return "", err
	}

	rid := uuid.New().String()
	start := time.Now()
	c.logger.Info("llm.analyze.start",
		zap.String("req_id", rid),
		zap.String("model", c.cfg.Model),
		zap.Float32("temp", c.cfg.Params.Temperature),
		zap.Int("prompt_len", len(prompt)),
	)

	body := generateRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: c.cfg.Params,
	}

	raw, status, err := llm.SendJSON(ctx, c.http, c.endpoint(), body, nil, c.logger)
	if err != nil {
		var se *llm.StatusError
		if errors.As(err, &se) {
			msg := fmt.Sprintf("API request failed with status %d: %s", status, strings.TrimSpace(string(se.Body)))
			c.logger.Error("llm.analyze.http_status",
				zap.String("req_id", rid),
				zap.Int("status", status),
				zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			)
			return "", common.NewAppError(common.CodeRequestFailed, msg, common.ErrRequestFailed)
		}
		c.logger.Error("llm.analyze.http_error",
			zap.String("req_id", rid),
			zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return "", common.NewAppError(common.CodeRequestFailed, err.Error(), errors.Join(common.ErrRequestFailed, err))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		c.logger.Error("llm.analyze.decode_error",
			zap.String("req_id", rid),
			zap.Error(err),
			zap.Int("raw_bytes", len(raw)),
		)
		return "", common.NewAppError(common.CodeRequestFailed, "could not decode Gemini response", errors.Join(common.ErrRequestFailed, err))
	}

	text := firstCandidateText(out)
	if text == "" {
		fields := []zap.Field{
			zap.String("req_id", rid),
			zap.Int("candidates", len(out.Candidates)),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		}
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			fields = append(fields, zap.String("block_reason", out.PromptFeedback.BlockReason))
		}
		c.logger.Error("llm.analyze.no_candidates", fields...)
		return "", common.NewAppError(common.CodeEmptyCandidate, "No response from Gemini API", common.ErrEmptyCandidate)
	}

	c.logger.Info("llm.analyze.ok",
		zap.String("req_id", rid),
		zap.Int("text_len", len(text)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return text, nil
}

func (c *Client) endpoint() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return base + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent?key=" + url.QueryEscape(c.cfg.APIKey)
}

func firstCandidateText(r generateResponse) string {
	if len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}
