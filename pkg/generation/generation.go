// Package generation relays prompts to the AI generation provider.
package generation

import (
	"context"
	"encoding/json"
)

// Request is a single text generation call.
// Config is forwarded to the provider verbatim; its keys are not interpreted here.
type Request struct {
	Prompt string                     `json:"prompt" validate:"required"`
	Model  string                     `json:"model" validate:"required"`
	Config map[string]json.RawMessage `json:"config,omitempty"`
}

// Generator produces text for a prompt.
// Implementations wrap provider failures in relay.ErrUpstream.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
