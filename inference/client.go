// Package inference defines the Client interface for the upstream LLM
// provider and its OpenAI-compatible implementation.
//
// The client owns the retry policy for transient upstream failures: network
// errors, timeouts, and provider 5xx responses are retried with exponential
// backoff, while authentication and request errors fail immediately. Callers
// see only the final outcome.
package inference

import "context"

// Request carries one chat completion to the provider.
type Request struct {
	// Query is the user's natural-language question.
	Query string
	// Model identifies the provider model; empty means the client default.
	Model string
	// MaxTokens caps the completion length; 0 means the client default.
	MaxTokens int
	// Temperature overrides the sampling temperature when non-nil.
	Temperature *float64
}

// Usage carries token consumption for a completed request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider's answer to a Request.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Client is implemented by inference backends.
type Client interface {
	Name() string
	// Complete sends one chat completion, retrying transient failures per
	// the client's retry policy. The backoff wait suspends only the calling
	// goroutine.
	Complete(ctx context.Context, req Request) (*Response, error)
	// Ping checks provider reachability (used by the health endpoint).
	Ping(ctx context.Context) error
}
