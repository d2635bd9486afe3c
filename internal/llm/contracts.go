package llm

import "context"

// Analyzer submits a prompt to a generative model and returns its raw text.
type Analyzer interface {
	Submit(ctx context.Context, prompt string) (string, error)
}

// CredentialChecker is implemented by analyzers that can tell, without any
// network call, whether they are configured to authenticate.
type CredentialChecker interface {
	CheckCredentials() error
}

// GenerationParams are the sampling parameters sent with every request.
type GenerationParams struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"topP"`
	TopK        int     `json:"topK"`
}

// DefaultGenerationParams favour stable, repeatable assessments.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{Temperature: 0.2, TopP: 0.8, TopK: 40}
}
