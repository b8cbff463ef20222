// Package llm provides the generative backend client.
package llm

import "context"

// GenerateRequest is one completion request. Format and streaming are
// fixed by the client: Thursday always asks for non-streamed JSON output.
type GenerateRequest struct {
	Model  string
	System string
	Prompt string
}

// Generator is the interface the validator and extractor consume.
// Implementations return the backend's raw response text; any transport
// fault (timeout, non-2xx status) is returned as an error and is fatal
// to the current turn.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
