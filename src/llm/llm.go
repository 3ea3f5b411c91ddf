// Package llm defines the language-model collaborator interface and its
// implementations.
package llm

import (
	"context"
	"time"
)

// Message is one turn of a conversation handed to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Request asks the model for a suggested reply to a conversation.
type Request struct {
	Model    string
	Messages []Message
}

// Result is the model's reply.
type Result struct {
	Text     string
	Duration time.Duration
}

// Client is the minimal surface the dialog processor needs from a model
// endpoint. Implementations must be safe for concurrent use.
type Client interface {
	Chat(ctx context.Context, req Request) (Result, error)
}
