package sse

import (
	"io"
	"strings"
)

// Splitter splits decoded stream text into newline-delimited frames.
//
// ┌──────────────┐   ┌─────────┐   ┌──────────────────┐   ┌───────┐
// │ raw []byte   │──▶│ Decoder │──▶│ buffer + split \n │──▶│ Frame │
// └──────────────┘   └─────────┘   └──────────────────┘   └───────┘
//
// The final element of every split is the (possibly incomplete) next line; it
// is kept in the buffer and not emitted until a newline arrives for it.
type Splitter struct {
	decoder *Decoder
	buffer  string
	tee     io.Writer
	teeErr  error
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithTee writes every raw byte fed to the splitter verbatim to w.
// A failing tee writer is disabled after its first error and never affects
// frame splitting.
func WithTee(w io.Writer) Option {
	return func(s *Splitter) {
		s.tee = w
	}
}

// NewSplitter returns an empty Splitter.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		decoder: NewDecoder(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed decodes p, appends it to the buffer and returns the data frames of
// every line completed by it, in order. Blank lines and lines without the
// "data: " prefix are dropped.
func (s *Splitter) Feed(p []byte) []Frame {
	s.writeTee(p)

	s.buffer += s.decoder.Decode(p)
	if !strings.Contains(s.buffer, "\n") {
		return nil
	}

	lines := strings.Split(s.buffer, "\n")
	s.buffer = lines[len(lines)-1]

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		frame, ok := ParseLine(line)
		if !ok {
			continue
		}
		frames = append(frames, frame)
	}

	return frames
}

// Pending returns the buffered text of the current unterminated line.
// It is never emitted as a frame: a stream that ends without a trailing
// newline loses it.
func (s *Splitter) Pending() string {
	return s.buffer
}

// TeeErr returns the first error from the tee writer, if any.
func (s *Splitter) TeeErr() error {
	return s.teeErr
}

func (s *Splitter) writeTee(p []byte) {
	if s.tee == nil || s.teeErr != nil || len(p) == 0 {
		return
	}
	if _, err := s.tee.Write(p); err != nil {
		s.teeErr = err
	}
}

// ParseLine extracts the payload of a single line. It returns false for blank
// lines and lines that do not start with the "data: " prefix once surrounding
// whitespace is trimmed.
func ParseLine(line string) (Frame, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Frame{}, false
	}

	data, ok := strings.CutPrefix(trimmed, DataPrefix)
	if !ok {
		return Frame{}, false
	}

	return Frame{Data: data}, true
}
