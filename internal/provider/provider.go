// Package provider implements clients for OpenAI-compatible completion APIs.
package provider

import "context"

// Message is a single chat message sent to the completion API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for a completion call.
type Request struct {
	Model            string
	Messages         []Message
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// Usage reports token usage for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a completion call.
type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Client is the interface for completion providers.
type Client interface {
	// Complete sends a chat completion request and returns the model text.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}
