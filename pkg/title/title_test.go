package title_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/title"
)

type fakeCompleter struct {
	reply string
	err   error

	model    string
	messages []llm.Message
	opts     *client.ChatOptions
}

func (f *fakeCompleter) ChatCompletion(_ context.Context, model string, messages []llm.Message, opts *client.ChatOptions) (*llm.ChatResponse, error) {
	f.model, f.messages, f.opts = model, messages, opts
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Message: llm.NewTextMessage(llm.RoleAssistant, f.reply)}, nil
}

var _ = Describe("Clean", func() {
	DescribeTable("normalizes model output",
		func(raw, want string) {
			Expect(title.Clean(raw)).To(Equal(want))
		},
		Entry("plain", "Go Concurrency Basics", "Go Concurrency Basics"),
		Entry("double quotes", `"Go Concurrency Basics"`, "Go Concurrency Basics"),
		Entry("single quotes", `'Baking Bread'`, "Baking Bread"),
		Entry("title prefix", "Title: Baking Bread", "Baking Bread"),
		Entry("topic prefix any case", "TOPIC:Baking Bread", "Baking Bread"),
		Entry("subject prefix", "Subject:   Tax Planning", "Tax Planning"),
		Entry("role prefix", "User: Tax Planning", "Tax Planning"),
		Entry("chat prefix without colon", "Chat about Rust", "about Rust"),
		Entry("trailing period", "Rust Lifetimes.", "Rust Lifetimes"),
		Entry("only one trailing mark", "Wow!!", "Wow!"),
		Entry("surrounding whitespace", "  Rust  \n", "Rust"),
		Entry("long titles are cut", strings.Repeat("a", 80), strings.Repeat("a", 50)),
		Entry("empty", "", ""),
	)
})

var _ = Describe("Fallback", func() {
	It("keeps short messages", func() {
		Expect(title.Fallback("How do I bake bread?")).To(Equal("How do I bake bread?"))
	})

	It("truncates long messages with an ellipsis", func() {
		msg := strings.Repeat("x", 60)
		Expect(title.Fallback(msg)).To(Equal(strings.Repeat("x", 50) + "..."))
	})

	It("counts characters, not bytes", func() {
		msg := strings.Repeat("é", 50)
		Expect(title.Fallback(msg)).To(Equal(msg))
	})
})

var _ = Describe("Generator", func() {
	ctx := context.Background()

	It("asks the title model with fixed sampling options", func() {
		fc := &fakeCompleter{reply: `"Sourdough Starter Tips."`}
		g := title.NewGenerator(fc, "title-model", nil)

		Expect(g.Generate(ctx, "How do I feed a starter?", "Twice a day.")).To(Equal("Sourdough Starter Tips"))
		Expect(fc.model).To(Equal("title-model"))
		Expect(*fc.opts.MaxTokens).To(Equal(20))
		Expect(*fc.opts.Temperature).To(Equal(0.7))
		Expect(fc.messages).To(HaveLen(2))
		Expect(fc.messages[0].Role).To(Equal(llm.RoleSystem))
		Expect(fc.messages[1].Content).To(HaveSuffix("User: How do I feed a starter?\nAssistant: Twice a day."))
	})

	It("omits the assistant line when there is no reply", func() {
		fc := &fakeCompleter{reply: "Bread"}
		title.NewGenerator(fc, "m", nil).Generate(ctx, "Bread?", "")
		Expect(fc.messages[1].Content).To(HaveSuffix("User: Bread?"))
	})

	It("falls back to the user message on error", func() {
		fc := &fakeCompleter{err: errors.New("no model loaded")}
		Expect(title.NewGenerator(fc, "m", nil).Generate(ctx, "Short question", "a")).To(Equal("Short question"))
	})

	It("falls back when the model output cleans to nothing", func() {
		fc := &fakeCompleter{reply: `""`}
		Expect(title.NewGenerator(fc, "m", nil).Generate(ctx, "Short question", "a")).To(Equal("Short question"))
	})
})
