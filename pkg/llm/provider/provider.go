// Package provider defines how chat completion wire formats are encoded and
// decoded.
package provider

import (
	"github.com/papercomputeco/lumina/pkg/llm"
)

// Provider defines the interface for a chat completion wire format.
// Each implementation knows how to serialize a request for its server and
// parse the server's responses into the internal representation.
type Provider interface {
	// Name returns the canonical provider name (e.g., "openai")
	Name() string

	// BuildRequest serializes the request into the provider's JSON body.
	BuildRequest(req *llm.ChatRequest) ([]byte, error)

	// ParseResponse converts a non-streaming response into the internal format.
	// Returns an error if the payload cannot be parsed.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)

	// ParseStreamChunk converts a single streaming frame payload into the
	// internal format. Returns an error if the payload is not a valid chunk;
	// callers skip such frames rather than failing the stream.
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)
}
