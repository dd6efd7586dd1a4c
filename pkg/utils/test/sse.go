package testutils

import (
	"encoding/json"
	"io"
)

// DoneFrame is the end-of-stream frame.
const DoneFrame = "data: [DONE]\n\n"

// DeltaFrame returns a chat completion chunk frame carrying content.
func DeltaFrame(content string) string {
	payload, err := json.Marshal(map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"choices": []any{
			map[string]any{
				"index":         0,
				"delta":         map[string]any{"content": content},
				"finish_reason": nil,
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return "data: " + string(payload) + "\n\n"
}

// SSEBody concatenates a frame per fragment, optionally followed by DoneFrame.
func SSEBody(done bool, fragments ...string) string {
	var body string
	for _, f := range fragments {
		body += DeltaFrame(f)
	}
	if done {
		body += DoneFrame
	}
	return body
}

// ChunkedBody is an io.ReadCloser that serves one chunk per Read and counts
// Close calls.
type ChunkedBody struct {
	Chunks [][]byte

	// Final is returned once the chunks are exhausted. Defaults to io.EOF.
	Final error

	// BeforeRead runs before the i-th read (0-based) is served.
	BeforeRead func(i int)

	Reads  int
	Closes int
}

// NewChunkedBody returns a body serving each string as one read.
func NewChunkedBody(chunks ...string) *ChunkedBody {
	b := &ChunkedBody{Final: io.EOF}
	for _, c := range chunks {
		b.Chunks = append(b.Chunks, []byte(c))
	}
	return b
}

// NewRawChunkedBody returns a body serving each byte slice as one read.
func NewRawChunkedBody(chunks ...[]byte) *ChunkedBody {
	return &ChunkedBody{Chunks: chunks, Final: io.EOF}
}

func (b *ChunkedBody) Read(p []byte) (int, error) {
	if b.BeforeRead != nil {
		b.BeforeRead(b.Reads)
	}
	if b.Closes > 0 {
		return 0, io.ErrClosedPipe
	}

	i := b.Reads
	b.Reads++
	if i >= len(b.Chunks) {
		return 0, b.Final
	}
	return copy(p, b.Chunks[i]), nil
}

func (b *ChunkedBody) Close() error {
	b.Closes++
	return nil
}
