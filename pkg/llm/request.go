package llm

// ChatRequest represents a chat completion request. It is immutable once
// issued: the transport serializes it exactly once.
type ChatRequest struct {
	// Model identifier (e.g., "mlx-community/Mistral-7B-Instruct-v0.3-4bit")
	Model string `json:"model"`

	// Ordered conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream bool `json:"stream"`

	// Sampling parameters, omitted when unset
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`

	// ChatID correlates the request with a stored chat so the server can
	// inject document context. It travels as a query parameter, never in the
	// body.
	ChatID string `json:"-"`
}
