// File: internal/services/ai/interface.go
package ai

import (
	"context"

	"github.com/iyunix/go-branchchat/internal/domain"
)

// StreamRequest describes one completion turn: the model to use, the system
// prompt to prepend, and the conversation history ending with the latest
// user message.
type StreamRequest struct {
	Model          string
	SystemPromptID string
	History        []domain.Message
}

// CompletionProvider handles chat completions.
type CompletionProvider interface {
	// StreamCompletion streams the assistant reply, calling onDelta for each
	// content fragment, and returns the full accumulated text. A non-nil
	// error from onDelta aborts the stream and is returned unchanged.
	StreamCompletion(ctx context.Context, req StreamRequest, onDelta func(string) error) (string, error)
	HealthCheck(ctx context.Context) error
}
