// Package llm defines the Provider interface for Large Language Model
// backends.
//
// Meetfox uses the LLM for three things: translating utterances, extracting
// meeting insights, and answering private chat questions. All three are
// plain request/response completions, so the interface is deliberately
// small: a single Complete call.
//
// Implementations must be safe for concurrent use and must classify
// transport failures with the sentinel errors in this package so callers
// can surface typed warnings without retrying.
package llm

import "context"

// Message is one turn of a conversation sent to the model.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string

	// Content is the message text.
	Content string
}

// Request carries everything the model needs to produce a response.
type Request struct {
	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the model's reply.
type Response struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use and should propagate
// context cancellation promptly.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Transport failures are wrapped with [ErrConnection] or [ErrTimeout]
	// so that callers can distinguish them with errors.Is. Returns an error
	// if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req Request) (*Response, error)
}
