package stream_test

import (
	"bytes"
	"errors"
	"io"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/llm/provider/openai"
	"github.com/papercomputeco/lumina/pkg/stream"
	testutils "github.com/papercomputeco/lumina/pkg/utils/test"
)

func delta(content string) string {
	return `data: {"id":"c","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":` + quote(content) + `},"finish_reason":null}]}` + "\n"
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

const done = "data: [DONE]\n"

func drain(s *stream.Stream) []string {
	var out []string
	for s.Next() {
		out = append(out, s.Fragment())
	}
	return out
}

var _ = Describe("Stream", func() {
	Describe("happy path", func() {
		It("yields fragments in order and accumulates the final text", func() {
			body := testutils.NewChunkedBody(delta("Hel"), delta("lo"), done)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"Hel", "lo"}))
			Expect(s.Text()).To(Equal("Hello"))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(s.Status()).To(Equal(stream.StatusDone))
			Expect(s.Truncated()).To(BeFalse())
			Expect(body.Closes).To(Equal(1))
		})

		It("assembles a frame line split across two reads", func() {
			body := testutils.NewChunkedBody(`data: {"cho`, `ices":[{"delta":{"content":"X"}}]}`+"\n", done)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"X"}))
			Expect(s.Text()).To(Equal("X"))
		})

		It("yields every fragment when many frames arrive in one read", func() {
			body := testutils.NewChunkedBody(delta("a") + delta("b") + delta("c") + done)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"a", "b", "c"}))
			Expect(s.Stats().Reads).To(Equal(1))
		})

		It("decodes a multi-byte character split across reads", func() {
			line := []byte(delta("naïve"))
			i := bytes.IndexByte(line, 0xc3) + 1
			body := testutils.NewRawChunkedBody(line[:i], line[i:], []byte(done))
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"naïve"}))
		})

		It("matches the concatenation of deltas for arbitrary read boundaries", func() {
			full := delta("The ") + delta("quick ") + `data: {"choices":[{"delta":{"role":"assistant"}}]}` + "\n" +
				delta("brown 🦊") + "\n" + delta(" jumps") + done
			raw := []byte(full)

			for size := 1; size <= 17; size++ {
				var chunks [][]byte
				for i := 0; i < len(raw); i += size {
					end := min(i+size, len(raw))
					chunks = append(chunks, raw[i:end])
				}

				s := stream.New(testutils.NewRawChunkedBody(chunks...), openai.New())
				Expect(strings.Join(drain(s), "")).To(Equal("The quick brown 🦊 jumps"), "read size %d", size)
				Expect(s.Text()).To(Equal("The quick brown 🦊 jumps"))
			}
		})
	})

	Describe("frame handling", func() {
		It("skips a malformed frame without affecting later fragments", func() {
			body := testutils.NewChunkedBody(delta("one"), "data: {not json}\n", delta("two"), done)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"one", "two"}))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(s.Stats().Skipped).To(Equal(1))
		})

		It("does not yield role-only or empty deltas", func() {
			body := testutils.NewChunkedBody(
				`data: {"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`+"\n",
				`data: {"choices":[{"index":0,"delta":{"content":""},"finish_reason":null}]}`+"\n",
				delta("hi"),
				`data: {"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`+"\n",
				done,
			)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"hi"}))
			Expect(s.Stats().Fragments).To(Equal(1))
		})

		It("ignores comments, blank lines and other SSE fields", func() {
			body := testutils.NewChunkedBody(": ping\n\n", "event: message\n", delta("ok"), "\n", done)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"ok"}))
		})

		It("stops reading at the sentinel", func() {
			body := testutils.NewChunkedBody(delta("a")+done+delta("ignored"), delta("never read"))
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"a"}))
			Expect(body.Reads).To(Equal(1))
			Expect(body.Closes).To(Equal(1))
		})
	})

	Describe("end of stream without sentinel", func() {
		It("finishes cleanly and reports truncation", func() {
			body := testutils.NewChunkedBody(delta("partial"))
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"partial"}))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(s.Status()).To(Equal(stream.StatusDone))
			Expect(s.Truncated()).To(BeTrue())
		})

		It("discards an unterminated final line", func() {
			body := testutils.NewChunkedBody(delta("kept"), `data: {"choices":[{"delta":{"content":"lost"}}]}`)
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"kept"}))
			Expect(s.Text()).To(Equal("kept"))
		})

		It("handles an empty body", func() {
			body := testutils.NewChunkedBody()
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(BeEmpty())
			Expect(s.Text()).To(BeEmpty())
			Expect(s.Truncated()).To(BeTrue())
			Expect(body.Closes).To(Equal(1))
		})
	})

	Describe("cancellation", func() {
		It("stops yielding once Stop is called and keeps the accumulated text", func() {
			body := testutils.NewChunkedBody(delta("a"), delta("b"), delta("c"), done)
			s := stream.New(body, openai.New())

			Expect(s.Next()).To(BeTrue())
			Expect(s.Fragment()).To(Equal("a"))

			s.Stop()
			Expect(s.Next()).To(BeFalse())
			Expect(s.Fragment()).To(BeEmpty())
			Expect(s.Text()).To(Equal("a"))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(s.Status()).To(Equal(stream.StatusCancelled))
			Expect(s.Truncated()).To(BeFalse())
			Expect(body.Closes).To(Equal(1))
			Expect(body.Reads).To(Equal(1))
		})

		It("drops fragments of a read completed after Stop", func() {
			body := testutils.NewChunkedBody(delta("a"), delta("b"), done)
			s := stream.New(body, openai.New())
			body.BeforeRead = func(i int) {
				if i == 1 {
					s.Stop()
				}
			}

			Expect(drain(s)).To(Equal([]string{"a"}))
			Expect(s.Text()).To(Equal("a"))
			Expect(s.Status()).To(Equal(stream.StatusCancelled))
		})

		It("drops queued fragments from the same read", func() {
			body := testutils.NewChunkedBody(delta("a") + delta("b") + done)
			s := stream.New(body, openai.New())

			Expect(s.Next()).To(BeTrue())
			s.Stop()
			Expect(s.Next()).To(BeFalse())
			Expect(s.Text()).To(Equal("a"))
		})

		It("treats a read interrupted by Stop as cancellation, not failure", func() {
			body := testutils.NewChunkedBody(delta("a"))
			body.Final = errors.New("use of closed network connection")
			s := stream.New(body, openai.New())
			body.BeforeRead = func(i int) {
				if i == 1 {
					s.Stop()
				}
			}

			Expect(drain(s)).To(Equal([]string{"a"}))
			Expect(s.Err()).NotTo(HaveOccurred())
			Expect(s.Status()).To(Equal(stream.StatusCancelled))
		})

		It("releases the reader exactly once across Stop, Next and Close", func() {
			body := testutils.NewChunkedBody(delta("a"), done)
			s := stream.New(body, openai.New())

			s.Stop()
			s.Stop()
			Expect(s.Next()).To(BeFalse())
			Expect(s.Next()).To(BeFalse())
			Expect(s.Close()).To(Succeed())
			Expect(s.Close()).To(Succeed())
			Expect(body.Closes).To(Equal(1))
			Expect(body.Reads).To(Equal(0))
		})

		It("cancels an open stream on Close", func() {
			body := testutils.NewChunkedBody(delta("a"), done)
			s := stream.New(body, openai.New())

			Expect(s.Close()).To(Succeed())
			Expect(s.Status()).To(Equal(stream.StatusCancelled))
			Expect(s.Next()).To(BeFalse())
			Expect(body.Closes).To(Equal(1))
		})
	})

	Describe("read errors", func() {
		It("fails with a ReadError carrying the partial text", func() {
			body := testutils.NewChunkedBody(delta("par"), delta("tial"))
			body.Final = errors.New("connection reset by peer")
			s := stream.New(body, openai.New())

			Expect(drain(s)).To(Equal([]string{"par", "tial"}))
			Expect(s.Status()).To(Equal(stream.StatusFailed))

			var readErr *stream.ReadError
			Expect(errors.As(s.Err(), &readErr)).To(BeTrue())
			Expect(readErr.Partial).To(Equal("partial"))
			Expect(readErr.Err).To(MatchError("connection reset by peer"))
			Expect(body.Closes).To(Equal(1))
		})

		It("yields fragments read alongside the error before failing", func() {
			s := stream.New(&errAfterData{data: []byte(delta("last"))}, openai.New())

			Expect(drain(s)).To(Equal([]string{"last"}))
			Expect(s.Err()).To(MatchError(ContainSubstring("boom")))
		})
	})

	Describe("All", func() {
		It("ranges over every fragment", func() {
			s := stream.New(testutils.NewChunkedBody(delta("x"), delta("y"), done), openai.New())

			var got []string
			for f := range s.All() {
				got = append(got, f)
			}
			Expect(got).To(Equal([]string{"x", "y"}))
		})

		It("closes the stream when the loop breaks early", func() {
			body := testutils.NewChunkedBody(delta("x"), delta("y"), done)
			s := stream.New(body, openai.New())

			for range s.All() {
				break
			}
			Expect(s.Status()).To(Equal(stream.StatusCancelled))
			Expect(s.Text()).To(Equal("x"))
			Expect(body.Closes).To(Equal(1))
		})
	})

	Describe("Collect", func() {
		It("reports each fragment with the running text", func() {
			s := stream.New(testutils.NewChunkedBody(delta("Hel"), delta("lo"), done), openai.New())

			var running []string
			text, err := s.Collect(func(_, full string) {
				running = append(running, full)
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("Hello"))
			Expect(running).To(Equal([]string{"Hel", "Hello"}))
		})

		It("accepts a nil callback", func() {
			s := stream.New(testutils.NewChunkedBody(delta("ok"), done), openai.New())
			text, err := s.Collect(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("ok"))
		})
	})

	Describe("WithTee", func() {
		It("copies the raw body", func() {
			var dst bytes.Buffer
			input := delta("a") + ": ping\n" + done
			s := stream.New(testutils.NewChunkedBody(input), openai.New(), stream.WithTee(&dst))

			_, err := s.Collect(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(dst.String()).To(Equal(input))
		})
	})

	Describe("Status", func() {
		It("has readable names", func() {
			Expect(stream.StatusOpen.String()).To(Equal("open"))
			Expect(stream.StatusDone.String()).To(Equal("done"))
			Expect(stream.StatusCancelled.String()).To(Equal("cancelled"))
			Expect(stream.StatusFailed.String()).To(Equal("failed"))
		})
	})
})

// errAfterData returns its data together with a non-EOF error.
type errAfterData struct {
	data []byte
	read bool
}

func (e *errAfterData) Read(p []byte) (int, error) {
	if e.read {
		return 0, io.ErrUnexpectedEOF
	}
	e.read = true
	return copy(p, e.data), errors.New("boom")
}

func (e *errAfterData) Close() error { return nil }
