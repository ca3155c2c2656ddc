package problem

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// LangchainDiagnostic implements Diagnostic over any langchaingo model
// (OpenAI, Anthropic, Ollama, ...). The concrete backend is chosen by the
// caller constructing the model.
type LangchainDiagnostic struct {
	model llms.Model
	opts  []llms.CallOption
}

// NewLangchainDiagnostic wraps a langchaingo model as a Diagnostic.
// Call options (temperature, max tokens, ...) are applied to every request.
func NewLangchainDiagnostic(model llms.Model, opts ...llms.CallOption) *LangchainDiagnostic {
	return &LangchainDiagnostic{
		model: model,
		opts:  opts,
	}
}

// Complete sends the prompt as a single-turn completion.
func (d *LangchainDiagnostic) Complete(ctx context.Context, prompt string) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, d.model, prompt, d.opts...)
}

var _ Diagnostic = (*LangchainDiagnostic)(nil)
