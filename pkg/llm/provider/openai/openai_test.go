package openai_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/llm/provider"
	"github.com/papercomputeco/lumina/pkg/llm/provider/openai"
)

func ptr[T any](v T) *T { return &v }

var _ = Describe("OpenAI Provider", func() {
	var p provider.Provider

	BeforeEach(func() {
		p = openai.New()
	})

	Describe("Name", func() {
		It("returns 'openai'", func() {
			Expect(p.Name()).To(Equal("openai"))
		})
	})

	Describe("BuildRequest", func() {
		It("serializes the streaming flag and messages", func() {
			body, err := p.BuildRequest(&llm.ChatRequest{
				Model: "mistral",
				Messages: []llm.Message{
					llm.NewTextMessage(llm.RoleSystem, "be brief"),
					llm.NewTextMessage(llm.RoleUser, "hi"),
				},
				Stream: true,
			})
			Expect(err).NotTo(HaveOccurred())

			var got map[string]any
			Expect(json.Unmarshal(body, &got)).To(Succeed())
			Expect(got["model"]).To(Equal("mistral"))
			Expect(got["stream"]).To(BeTrue())
			Expect(got["messages"]).To(HaveLen(2))
			Expect(got).NotTo(HaveKey("temperature"))
			Expect(got).NotTo(HaveKey("max_tokens"))
			Expect(got).NotTo(HaveKey("top_p"))
			Expect(got).NotTo(HaveKey("stop"))
		})

		It("includes sampling parameters when set", func() {
			body, err := p.BuildRequest(&llm.ChatRequest{
				Model:       "mistral",
				Temperature: ptr(0.7),
				MaxTokens:   ptr(20),
				TopP:        ptr(0.9),
				Stop:        []string{"\n\n"},
			})
			Expect(err).NotTo(HaveOccurred())

			var got map[string]any
			Expect(json.Unmarshal(body, &got)).To(Succeed())
			Expect(got["stream"]).To(BeFalse())
			Expect(got["temperature"]).To(BeNumerically("==", 0.7))
			Expect(got["max_tokens"]).To(BeNumerically("==", 20))
			Expect(got["top_p"]).To(BeNumerically("==", 0.9))
			Expect(got["stop"]).To(ConsistOf("\n\n"))
		})

		It("never serializes the chat id", func() {
			body, err := p.BuildRequest(&llm.ChatRequest{Model: "m", ChatID: "chat-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).NotTo(ContainSubstring("chat-1"))
		})

		It("rejects a nil request", func() {
			_, err := p.BuildRequest(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseResponse", func() {
		It("parses a complete response", func() {
			payload := []byte(`{
				"id": "chatcmpl-123",
				"object": "chat.completion",
				"created": 1677652288,
				"model": "mistral",
				"choices": [{
					"index": 0,
					"message": {"role": "assistant", "content": "Hello there!"},
					"finish_reason": "stop"
				}],
				"usage": {"prompt_tokens": 9, "completion_tokens": 3, "total_tokens": 12}
			}`)

			resp, err := p.ParseResponse(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.ID).To(Equal("chatcmpl-123"))
			Expect(resp.Model).To(Equal("mistral"))
			Expect(resp.Message.Role).To(Equal("assistant"))
			Expect(resp.Message.Content).To(Equal("Hello there!"))
			Expect(resp.StopReason).To(Equal("stop"))
			Expect(resp.Usage.TotalTokens).To(Equal(12))
			Expect(resp.CreatedAt.Unix()).To(Equal(int64(1677652288)))
		})

		It("handles a response without choices", func() {
			resp, err := p.ParseResponse([]byte(`{"id":"x","model":"m","choices":[]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Message.Content).To(BeEmpty())
		})

		It("returns an error for invalid JSON", func() {
			_, err := p.ParseResponse([]byte(`not json`))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ParseStreamChunk", func() {
		It("extracts delta content from the first choice", func() {
			chunk, err := p.ParseStreamChunk([]byte(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Hel"},"finish_reason":null}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Content).To(Equal("Hel"))
			Expect(chunk.HasContent()).To(BeTrue())
			Expect(chunk.FinishReason).To(BeNil())
			Expect(chunk.ID).To(Equal("c1"))
		})

		It("reads only the first choice", func() {
			chunk, err := p.ParseStreamChunk([]byte(`{"choices":[{"index":0,"delta":{"content":"a"}},{"index":1,"delta":{"content":"b"}}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Content).To(Equal("a"))
		})

		It("forwards a role-only delta without content", func() {
			chunk, err := p.ParseStreamChunk([]byte(`{"choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.Role).To(Equal("assistant"))
			Expect(chunk.HasContent()).To(BeFalse())
		})

		It("forwards the finish reason", func() {
			chunk, err := p.ParseStreamChunk([]byte(`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.FinishReason).NotTo(BeNil())
			Expect(*chunk.FinishReason).To(Equal("stop"))
			Expect(chunk.HasContent()).To(BeFalse())
		})

		It("treats a payload without choices as empty", func() {
			chunk, err := p.ParseStreamChunk([]byte(`{"id":"c1"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(chunk.HasContent()).To(BeFalse())
		})

		It("returns an error for malformed JSON", func() {
			_, err := p.ParseStreamChunk([]byte(`{"choices":[`))
			Expect(err).To(HaveOccurred())
		})

		It("returns ErrNotObject for non-object JSON", func() {
			_, err := p.ParseStreamChunk([]byte(`"just a string"`))
			Expect(err).To(MatchError(openai.ErrNotObject))
		})
	})
})
