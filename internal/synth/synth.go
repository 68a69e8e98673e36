// Package synth delegates issue generation to an external
// text-generation service. The pipeline only sees the Synthesizer
// interface; the Anthropic Messages API implementation lives in
// anthropic.go.
package synth

import (
	"context"

	"github.com/r8slab/the-drop/internal/prompt"
)

// Synthesizer accepts a prompt document and returns a raw text
// completion. Single request/response, no streaming, no retry.
type Synthesizer interface {
	Complete(ctx context.Context, doc *prompt.Document, maxOutputTokens int) (string, error)

	// Ping checks if the provider is reachable and the credentials work.
	Ping(ctx context.Context) error
}
