// Package sse provides a minimal, purpose-built SSE (Server-Sent Events)
// frame splitter for consuming OpenAI-compatible chat completion streams.
//
// Bytes are fed in as they arrive from the network. The splitter decodes them
// incrementally (holding back partial UTF-8 sequences), splits the decoded text
// on newlines and emits one Frame per complete "data: " line. An unterminated
// trailing line stays buffered until a later read completes it.
//
// This package intentionally does NOT implement the full SSE event model
// (event:, id:, retry: fields and multi-line data joining). Inference servers
// speaking the chat completions wire format emit one "data: <json>" line per
// chunk and terminate with "data: [DONE]".
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

const (
	// DataPrefix is the literal prefix of every payload line.
	DataPrefix = "data: "

	// DoneSentinel is the payload of the final frame of a stream.
	DoneSentinel = "[DONE]"
)

// Frame is a single "data: <payload>" line decoded from the byte stream.
// Frames are transient: they are not retained beyond their processing.
type Frame struct {
	// Data is the payload with the "data: " prefix stripped.
	Data string
}

// IsDone reports whether the frame is the [DONE] termination sentinel.
func (f Frame) IsDone() bool {
	return f.Data == DoneSentinel
}
