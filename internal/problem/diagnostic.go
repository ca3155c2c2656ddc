package problem

import (
	"context"
)

// Diagnostic is the external text-completion collaborator the broker sends
// problem prompts to. It is a black box: the broker controls neither its
// latency nor the quality of its answers.
type Diagnostic interface {
	// Complete sends a prompt and returns the free-text response.
	Complete(ctx context.Context, prompt string) (string, error)
}

// DiagnosticFunc adapts a function to the Diagnostic interface.
type DiagnosticFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements Diagnostic.
func (f DiagnosticFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
