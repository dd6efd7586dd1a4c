package sse_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/sse"
)

type failingWriter struct{ calls int }

func (w *failingWriter) Write(_ []byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func datas(frames []sse.Frame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Data)
	}
	return out
}

var _ = Describe("Splitter", func() {
	var s *sse.Splitter

	BeforeEach(func() {
		s = sse.NewSplitter()
	})

	Describe("Feed", func() {
		It("emits one frame per complete data line", func() {
			frames := s.Feed([]byte("data: first\ndata: second\n"))
			Expect(datas(frames)).To(Equal([]string{"first", "second"}))
			Expect(s.Pending()).To(BeEmpty())
		})

		It("keeps an incomplete trailing line buffered until it completes", func() {
			Expect(s.Feed([]byte(`data: {"cho`))).To(BeEmpty())
			Expect(s.Pending()).To(Equal(`data: {"cho`))

			frames := s.Feed([]byte(`ices":[{"delta":{"content":"X"}}]}` + "\n"))
			Expect(datas(frames)).To(Equal([]string{`{"choices":[{"delta":{"content":"X"}}]}`}))
			Expect(s.Pending()).To(BeEmpty())
		})

		It("ignores blank lines and SSE blank-line event delimiters", func() {
			frames := s.Feed([]byte("\n\ndata: a\n\n\ndata: b\n\n"))
			Expect(datas(frames)).To(Equal([]string{"a", "b"}))
		})

		It("ignores lines without the data prefix", func() {
			frames := s.Feed([]byte(": keep-alive\nevent: ping\nid: 7\ndata: kept\n"))
			Expect(datas(frames)).To(Equal([]string{"kept"}))
		})

		It("requires the space after the colon", func() {
			frames := s.Feed([]byte("data:no-space\ndata: spaced\n"))
			Expect(datas(frames)).To(Equal([]string{"spaced"}))
		})

		It("trims surrounding whitespace including carriage returns", func() {
			frames := s.Feed([]byte("  data: padded  \r\ndata: crlf\r\n"))
			Expect(datas(frames)).To(Equal([]string{"padded", "crlf"}))
		})

		It("decodes a multi-byte character split across reads", func() {
			line := []byte("data: café\n")
			split := bytes.IndexByte(line, 0xc3) + 1

			Expect(s.Feed(line[:split])).To(BeEmpty())
			frames := s.Feed(line[split:])
			Expect(datas(frames)).To(Equal([]string{"café"}))
		})

		It("recognizes the DONE sentinel", func() {
			frames := s.Feed([]byte("data: [DONE]\n"))
			Expect(frames).To(HaveLen(1))
			Expect(frames[0].IsDone()).To(BeTrue())
		})

		It("never emits an unterminated final line", func() {
			Expect(s.Feed([]byte("data: tail"))).To(BeEmpty())
			Expect(s.Pending()).To(Equal("data: tail"))
		})
	})

	Describe("WithTee", func() {
		It("forwards every raw byte verbatim", func() {
			var dst bytes.Buffer
			s = sse.NewSplitter(sse.WithTee(&dst))

			input := ": comment\ndata: {\"a\":1}\n\ndata: [DONE]\n"
			s.Feed([]byte(input[:10]))
			s.Feed([]byte(input[10:]))

			Expect(dst.String()).To(Equal(input))
		})

		It("disables a failing tee without affecting frames", func() {
			w := &failingWriter{}
			s = sse.NewSplitter(sse.WithTee(w))

			Expect(datas(s.Feed([]byte("data: one\n")))).To(Equal([]string{"one"}))
			Expect(datas(s.Feed([]byte("data: two\n")))).To(Equal([]string{"two"}))
			Expect(w.calls).To(Equal(1))
			Expect(s.TeeErr()).To(MatchError("disk full"))
		})
	})

	Describe("ParseLine", func() {
		It("strips the data prefix", func() {
			f, ok := sse.ParseLine("data: payload")
			Expect(ok).To(BeTrue())
			Expect(f.Data).To(Equal("payload"))
		})

		It("rejects blank lines", func() {
			_, ok := sse.ParseLine("   ")
			Expect(ok).To(BeFalse())
		})

		It("rejects an empty data line", func() {
			// "data: " trims to "data:" which no longer carries the prefix.
			_, ok := sse.ParseLine("data: ")
			Expect(ok).To(BeFalse())
		})
	})
})
