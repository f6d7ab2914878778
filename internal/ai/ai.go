// Package ai defines the contracts for the remote model services the skill
// pipeline talks to: a chat-style text generator and a batch embedder.
package ai

import (
	"context"
	"errors"
)

// ErrUnavailable marks a remote model that failed, timed out or answered with
// something unusable. Callers degrade instead of failing the analysis.
var ErrUnavailable = errors.New("model service unavailable")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role/content pair of a chat request.
type Message struct {
	Role    Role
	Content string
}

// GenerateRequest is a chat completion request. Model is chosen by the generator.
type GenerateRequest struct {
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// System returns the concatenated content of all system messages.
func (r *GenerateRequest) System() string {
	var out string
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// Generator produces a single text blob for a chat request.
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
	Model() string
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
}
