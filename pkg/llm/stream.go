package llm

import "time"

// StreamChunk represents the parsed delta of a single streaming chunk.
// Only Content is consumed by the stream; the remaining fields are forwarded
// for logging and diagnostics.
type StreamChunk struct {
	// ID of the completion the chunk belongs to
	ID string `json:"id,omitempty"`

	// Model that generated the chunk
	Model string `json:"model"`

	// Chunk timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Incremental text content, empty for role-only or empty deltas
	Content string `json:"content,omitempty"`

	// Role marker, usually only present on the first chunk
	Role string `json:"role,omitempty"`

	// Index of the choice the delta was read from
	Index int `json:"index,omitempty"`

	// FinishReason is nil until the server reports why generation stopped
	FinishReason *string `json:"finish_reason,omitempty"`
}

// HasContent reports whether the chunk carries visible text.
func (c *StreamChunk) HasContent() bool {
	return c != nil && c.Content != ""
}
