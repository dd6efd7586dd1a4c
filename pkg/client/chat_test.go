package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/stream"
)

func sseDelta(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}, "finish_reason": nil}},
	})
	return "data: " + string(payload) + "\n\n"
}

// recordedRequest captures what the fake server received.
type recordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     map[string]any
}

type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeServer(handler http.HandlerFunc) *fakeServer {
	f := &fakeServer{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recordedRequest{
			Method:   r.Method,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Header:   r.Header.Clone(),
		}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.Body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, rec)
		f.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(raw))
		handler(w, r)
	}))
	return f
}

func (f *fakeServer) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	Expect(f.requests).NotTo(BeEmpty())
	return f.requests[len(f.requests)-1]
}

func (f *fakeServer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for _, f := range frames {
		_, _ = io.WriteString(w, f)
		flusher.Flush()
	}
}

func newClient(url string, opts ...client.Option) *client.Client {
	c, err := client.New(url, opts...)
	Expect(err).NotTo(HaveOccurred())
	return c
}

var userHi = []llm.Message{llm.NewTextMessage(llm.RoleUser, "Hi")}

var _ = Describe("New", func() {
	It("defaults to the local server address", func() {
		c, err := client.New("")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.BaseURL()).To(Equal(client.DefaultBaseURL))
	})

	It("trims trailing slashes", func() {
		c, err := client.New("http://localhost:1234/")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.BaseURL()).To(Equal("http://localhost:1234"))
	})

	It("rejects targets without a scheme", func() {
		_, err := client.New("localhost:6999")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("StreamChatCompletion", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("posts one streaming request and yields the deltas", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, sseDelta("Hel"), sseDelta("lo"), "data: [DONE]\n\n")
		})
		defer srv.Close()

		s, err := newClient(srv.URL).StreamChatCompletion(ctx, "test-model", userHi, nil)
		Expect(err).NotTo(HaveOccurred())

		text, err := s.Collect(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("Hello"))
		Expect(s.Truncated()).To(BeFalse())

		req := srv.last()
		Expect(srv.count()).To(Equal(1))
		Expect(req.Method).To(Equal(http.MethodPost))
		Expect(req.Path).To(Equal("/v1/chat/completions"))
		Expect(req.RawQuery).To(BeEmpty())
		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(req.Body).To(HaveKeyWithValue("model", "test-model"))
		Expect(req.Body).To(HaveKeyWithValue("stream", true))
		Expect(req.Body["messages"]).To(Equal([]any{map[string]any{"role": "user", "content": "Hi"}}))
		Expect(req.Body).NotTo(HaveKey("temperature"))
		Expect(req.Body).NotTo(HaveKey("chat_id"))
	})

	It("sends sampling options and the chat id as a query parameter", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, "data: [DONE]\n\n")
		})
		defer srv.Close()

		temp, maxTokens := 0.2, 64
		s, err := newClient(srv.URL).StreamChatCompletion(ctx, "m", userHi, &client.ChatOptions{
			Temperature: &temp,
			MaxTokens:   &maxTokens,
			Stop:        []string{"\n\n"},
			ChatID:      "chat 1/2",
		})
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Collect(nil)
		Expect(err).NotTo(HaveOccurred())

		req := srv.last()
		Expect(req.RawQuery).To(Equal("chat_id=chat+1%2F2"))
		Expect(req.Body).To(HaveKeyWithValue("temperature", 0.2))
		Expect(req.Body).To(HaveKeyWithValue("max_tokens", float64(64)))
		Expect(req.Body).To(HaveKeyWithValue("stop", []any{"\n\n"}))
		Expect(req.Body).NotTo(HaveKey("top_p"))
	})

	It("returns RequestFailedError with a JSON body for non-2xx responses", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"detail":"No model loaded"}`)
		})
		defer srv.Close()

		s, err := newClient(srv.URL).StreamChatCompletion(ctx, "m", userHi, nil)
		Expect(s).To(BeNil())

		var reqErr *client.RequestFailedError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Status).To(Equal(http.StatusServiceUnavailable))
		Expect(reqErr.StatusText).To(Equal("Service Unavailable"))
		Expect(reqErr.Body).To(Equal(map[string]any{"detail": "No model loaded"}))
		Expect(reqErr.Detail()).To(Equal("No model loaded"))
		Expect(err.Error()).To(Equal("API error: 503 Service Unavailable: No model loaded"))
	})

	It("keeps a non-JSON error body as raw text", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "upstream exploded")
		})
		defer srv.Close()

		_, err := newClient(srv.URL).StreamChatCompletion(ctx, "m", userHi, nil)

		var reqErr *client.RequestFailedError
		Expect(errors.As(err, &reqErr)).To(BeTrue())
		Expect(reqErr.Body).To(Equal("upstream exploded"))
	})

	It("returns TransportError when the server is unreachable", func() {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		s, err := newClient(url).StreamChatCompletion(ctx, "m", userHi, nil)
		Expect(s).To(BeNil())
		Expect(client.IsTransport(err)).To(BeTrue())
		Expect(err.Error()).To(HavePrefix("network error: POST"))
	})

	It("reports a body cut mid-stream as truncated", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, sseDelta("par"), sseDelta("tial"))
		})
		defer srv.Close()

		s, err := newClient(srv.URL).StreamChatCompletion(ctx, "m", userHi, nil)
		Expect(err).NotTo(HaveOccurred())

		text, err := s.Collect(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("partial"))
		Expect(s.Truncated()).To(BeTrue())
	})

	It("stops consuming when the consumer stops", func() {
		release := make(chan struct{})
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, sseDelta("first"))
			<-release
		})
		defer srv.Close()
		defer close(release)

		s, err := newClient(srv.URL).StreamChatCompletion(ctx, "m", userHi, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Next()).To(BeTrue())
		Expect(s.Fragment()).To(Equal("first"))
		s.Stop()
		Expect(s.Next()).To(BeFalse())
		Expect(s.Status()).To(Equal(stream.StatusCancelled))
		Expect(s.Err()).NotTo(HaveOccurred())
		Expect(s.Text()).To(Equal("first"))
	})

	It("surfaces context cancellation mid-stream as a ReadError", func() {
		release := make(chan struct{})
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, sseDelta("first"))
			<-release
		})
		defer srv.Close()
		defer close(release)

		cctx, cancel := context.WithCancel(ctx)
		s, err := newClient(srv.URL).StreamChatCompletion(cctx, "m", userHi, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(s.Next()).To(BeTrue())
		cancel()
		Expect(s.Next()).To(BeFalse())

		var readErr *stream.ReadError
		Expect(errors.As(s.Err(), &readErr)).To(BeTrue())
		Expect(readErr.Partial).To(Equal("first"))
		Expect(s.Status()).To(Equal(stream.StatusFailed))
	})

	It("tees the raw stream", func() {
		frames := []string{sseDelta("a"), ": keep-alive\n\n", "data: [DONE]\n\n"}
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			writeSSE(w, frames...)
		})
		defer srv.Close()

		var raw bytes.Buffer
		s, err := newClient(srv.URL, client.WithStreamTee(&raw), client.WithStreamReadSize(7)).
			StreamChatCompletion(ctx, "m", userHi, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Collect(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(raw.String()).To(HavePrefix(frames[0] + frames[1] + "data: [DONE]"))
	})
})

var _ = Describe("ChatCompletion", func() {
	It("posts a non-streaming request and parses the reply", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1700000000,"model":"m",
				"choices":[{"index":0,"message":{"role":"assistant","content":"Paris"},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`)
		})
		defer srv.Close()

		resp, err := newClient(srv.URL).ChatCompletion(context.Background(), "m", userHi, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.Content).To(Equal("Paris"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.TotalTokens).To(Equal(6))

		Expect(srv.last().Body).To(HaveKeyWithValue("stream", false))
	})

	It("returns RequestFailedError on failure", func() {
		srv := newFakeServer(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		defer srv.Close()

		_, err := newClient(srv.URL).ChatCompletion(context.Background(), "m", userHi, nil)
		Expect(client.IsNotFound(err)).To(BeTrue())
	})
})
