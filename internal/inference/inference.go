// Package inference is the LLM completion capability and its provider adapters.
package inference

import "context"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Request is a single completion call.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSON asks the provider to return a single JSON object.
	JSON bool
}

// Response is the text a provider returned.
type Response struct {
	Text       string
	TokensUsed int
}

// Backend completes prompts. Implementations return RATE_LIMIT and TIMEOUT
// FacetErrors for throttling and unavailability so callers can retry.
type Backend interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f BackendFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
