// Package stream reconstructs assistant text from a streamed chat completion
// response and exposes it as a lazy, single-pass sequence of text fragments.
//
// A Stream owns everything one invocation needs: the response body, its own
// frame splitter, the queue of parsed fragments and the accumulated text.
// Nothing is shared between streams. The only method that may be called from
// another goroutine is Stop.
package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/sse"
	"github.com/papercomputeco/lumina/pkg/utils"
)

const defaultReadSize = 4 * 1024

// ChunkParser parses a single frame payload into a delta.
// provider.Provider satisfies it.
type ChunkParser interface {
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)
}

// Status is the terminal status of a stream.
type Status int

const (
	// StatusOpen means the stream may still yield fragments.
	StatusOpen Status = iota

	// StatusDone means the stream ended on the [DONE] sentinel or when the
	// server closed the body.
	StatusDone

	// StatusCancelled means Stop or Close ended the stream early.
	StatusCancelled

	// StatusFailed means reading the body failed mid-stream.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusDone:
		return "done"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ReadError is returned when the underlying byte stream fails mid-read.
// Partial holds the text yielded before the failure.
type ReadError struct {
	Partial string
	Err     error
}

func (e *ReadError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("reading stream (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("reading stream: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Stats counts what a stream has processed so far.
type Stats struct {
	Reads     int
	Frames    int
	Skipped   int
	Fragments int
}

// Stream is the per-invocation stream state.
type Stream struct {
	body     io.ReadCloser
	parser   ChunkParser
	splitter *sse.Splitter
	logger   *zap.Logger
	buf      []byte

	stop      atomic.Bool
	closeOnce sync.Once
	closeErr  error

	queue    []string
	fragment string
	text     strings.Builder

	// ended is set once no further reads may happen: either the sentinel
	// arrived or the body reported EOF.
	ended   bool
	sawDone bool
	readErr error

	status Status
	err    error
	stats  Stats
}

// Option configures a Stream.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	readSize int
	tee      io.Writer
}

// WithLogger sets the logger used for skipped frames and lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithReadSize sets the size of the buffer passed to each body read.
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// WithTee copies every raw byte read from the body to w.
func WithTee(w io.Writer) Option {
	return func(o *options) {
		o.tee = w
	}
}

// New returns a Stream reading frames from body. The stream takes ownership
// of body and closes it exactly once.
func New(body io.ReadCloser, parser ChunkParser, opts ...Option) *Stream {
	o := &options{
		logger:   zap.NewNop(),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	var splitterOpts []sse.Option
	if o.tee != nil {
		splitterOpts = append(splitterOpts, sse.WithTee(o.tee))
	}

	return &Stream{
		body:     body,
		parser:   parser,
		splitter: sse.NewSplitter(splitterOpts...),
		logger:   o.logger,
		buf:      make([]byte, o.readSize),
	}
}

// Next advances to the next text fragment, blocking on the body as needed.
// It returns false once the stream is terminal; Err then reports whether it
// failed.
func (s *Stream) Next() bool {
	s.fragment = ""
	if s.status != StatusOpen {
		return false
	}

	for {
		if s.stop.Load() {
			s.finish(StatusCancelled, nil)
			return false
		}

		if len(s.queue) > 0 {
			s.fragment = s.queue[0]
			s.queue = s.queue[1:]
			s.text.WriteString(s.fragment)
			s.stats.Fragments++
			return true
		}

		if s.readErr != nil {
			s.finish(StatusFailed, &ReadError{Partial: s.text.String(), Err: s.readErr})
			return false
		}

		if s.ended {
			s.finish(StatusDone, nil)
			return false
		}

		s.read()
	}
}

// read performs one body read and queues the fragments it completes.
func (s *Stream) read() {
	n, err := s.body.Read(s.buf)
	s.stats.Reads++

	if n > 0 {
		s.process(s.buf[:n])
	}

	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		s.ended = true
		if pending := s.splitter.Pending(); pending != "" {
			s.logger.Debug("discarding unterminated line at end of stream",
				zap.String("line", utils.Truncate(pending, 100)),
			)
		}
	case s.stop.Load():
		// The read was interrupted because the consumer stopped; the next
		// loop iteration reports cancellation instead of a failure.
	default:
		s.readErr = err
	}
}

// process splits p into frames and interprets each one. Frames after the
// sentinel are ignored.
func (s *Stream) process(p []byte) {
	for _, frame := range s.splitter.Feed(p) {
		if s.ended {
			return
		}

		s.stats.Frames++
		if frame.IsDone() {
			s.logger.Debug("received stream sentinel")
			s.sawDone = true
			s.ended = true
			continue
		}

		chunk, err := s.parser.ParseStreamChunk([]byte(frame.Data))
		if err != nil {
			s.stats.Skipped++
			s.logger.Debug("skipping malformed stream frame",
				zap.Error(err),
				zap.String("data", utils.Truncate(frame.Data, 100)),
			)
			continue
		}

		if chunk.HasContent() {
			s.queue = append(s.queue, chunk.Content)
		}
	}
}

// finish freezes the stream in a terminal status and releases the body.
func (s *Stream) finish(status Status, err error) {
	if s.status != StatusOpen {
		return
	}

	s.status = status
	s.err = err
	s.queue = nil
	s.release()

	fields := []zap.Field{
		zap.Stringer("status", status),
		zap.Bool("truncated", s.Truncated()),
		zap.Int("reads", s.stats.Reads),
		zap.Int("frames", s.stats.Frames),
		zap.Int("skipped", s.stats.Skipped),
		zap.Int("fragments", s.stats.Fragments),
		zap.Int("chars", s.text.Len()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Debug("stream finished", fields...)
}

func (s *Stream) release() {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
}

// Fragment returns the fragment produced by the most recent call to Next.
func (s *Stream) Fragment() string {
	return s.fragment
}

// Stop signals the stream to end early. It is safe to call from any
// goroutine, any number of times. The next Next call returns false, the body
// is released and the text accumulated so far becomes final with no error.
func (s *Stream) Stop() {
	s.stop.Store(true)
}

// Stopped reports whether Stop has been called.
func (s *Stream) Stopped() bool {
	return s.stop.Load()
}

// Close releases the body. Closing an open stream cancels it.
func (s *Stream) Close() error {
	if s.status == StatusOpen {
		s.stop.Store(true)
		s.finish(StatusCancelled, nil)
	}
	s.release()
	return s.closeErr
}

// Text returns the concatenation of every fragment yielded so far. Once the
// stream is terminal it is the final message content.
func (s *Stream) Text() string {
	return s.text.String()
}

// Err returns the error that ended the stream. Cancellation and a clean end
// of stream are not errors.
func (s *Stream) Err() error {
	return s.err
}

// Status returns the current status.
func (s *Stream) Status() Status {
	return s.status
}

// Truncated reports whether the stream finished without receiving the
// [DONE] sentinel. Only meaningful once Status is StatusDone.
func (s *Stream) Truncated() bool {
	return s.status == StatusDone && !s.sawDone
}

// Stats returns processing counters.
func (s *Stream) Stats() Stats {
	return s.stats
}

// All returns the fragments as a range-over-func sequence. Breaking out of
// the loop closes the stream.
func (s *Stream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for s.Next() {
			if !yield(s.Fragment()) {
				_ = s.Close()
				return
			}
		}
	}
}

// Collect drains the stream, calling onFragment (if non-nil) with each
// fragment and the text accumulated so far, and returns the final text.
// The body is released on every path.
func (s *Stream) Collect(onFragment func(fragment, full string)) (string, error) {
	defer s.release()

	for s.Next() {
		if onFragment != nil {
			onFragment(s.Fragment(), s.Text())
		}
	}

	return s.Text(), s.Err()
}
