package session_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/eventstream"
	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/session"
	"github.com/papercomputeco/lumina/pkg/stream"
	testutils "github.com/papercomputeco/lumina/pkg/utils/test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ExchangeCompletedEvent
}

func (p *recordingPublisher) PublishExchange(_ context.Context, e *eventstream.ExchangeCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []*eventstream.ExchangeCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*eventstream.ExchangeCompletedEvent(nil), p.events...)
}

func contents(msgs []session.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role+":"+m.Content)
	}
	return out
}

var _ = Describe("Session", func() {
	var (
		ctx     context.Context
		backend *testutils.MockBackend
		pub     *recordingPublisher
		s       *session.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = testutils.NewMockBackend()
		pub = &recordingPublisher{}
		s = session.New(backend, "chat-model",
			session.WithTitleModel("title-model"),
			session.WithPublisher(pub),
		)
	})

	Describe("Send", func() {
		It("creates a chat, streams the reply and records both messages", func() {
			backend.QueueText("Hel", "lo")

			var running []string
			reply, err := s.Send(ctx, "  Hi there  ", func(_, full string) {
				running = append(running, full)
			})
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			Expect(reply.Status).To(Equal(stream.StatusDone))
			Expect(reply.Truncated).To(BeFalse())
			Expect(reply.Message.Content).To(Equal("Hello"))
			Expect(running).To(Equal([]string{"Hel", "Hello"}))

			Expect(s.ChatID()).To(Equal("chat-1"))
			Expect(s.Streaming()).To(BeFalse())
			Expect(contents(s.Messages())).To(Equal([]string{"user:Hi there", "assistant:Hello"}))

			stored := backend.StoredMessages("chat-1")
			Expect(stored).To(HaveLen(2))
			Expect(stored[0].Content).To(Equal("Hi there"))
			Expect(stored[1].Content).To(Equal("Hello"))

			Expect(backend.StreamCalls).To(HaveLen(1))
			Expect(backend.StreamCalls[0].Model).To(Equal("chat-model"))
			Expect(backend.StreamCalls[0].Messages).To(Equal([]llm.Message{
				llm.NewTextMessage(llm.RoleUser, "Hi there"),
			}))
		})

		It("ignores blank messages", func() {
			reply, err := s.Send(ctx, " \n\t", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(BeNil())
			Expect(backend.StreamCalls).To(BeEmpty())
			Expect(s.ChatID()).To(BeEmpty())
		})

		It("prepends the agent prompt and sends the history", func() {
			s.SetAgent("agent-1", "You are terse.")
			backend.QueueText("First answer")
			backend.QueueText("Second answer")

			_, err := s.Send(ctx, "first", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Send(ctx, "second", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			Expect(backend.Chats["chat-1"].AgentID).To(HaveValue(Equal("agent-1")))
			Expect(backend.StreamCalls[1].Messages).To(Equal([]llm.Message{
				llm.NewTextMessage(llm.RoleSystem, "You are terse."),
				llm.NewTextMessage(llm.RoleUser, "first"),
				llm.NewTextMessage(llm.RoleAssistant, "First answer"),
				llm.NewTextMessage(llm.RoleUser, "second"),
			}))
		})

		It("passes sampling options and the chat id when document context is on", func() {
			temp, maxTokens := 0.3, 128
			s = session.New(backend, "m",
				session.WithSampling(&temp, &maxTokens, nil),
				session.WithDocumentContext(true),
			)

			_, err := s.Send(ctx, "question", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			opts := backend.StreamCalls[0].Opts
			Expect(opts.ChatID).To(Equal("chat-1"))
			Expect(*opts.Temperature).To(Equal(0.3))
			Expect(*opts.MaxTokens).To(Equal(128))
			Expect(opts.TopP).To(BeNil())
		})

		It("toggles document context between exchanges", func() {
			_, err := s.Send(ctx, "one", nil)
			Expect(err).NotTo(HaveOccurred())

			s.SetDocumentContext(true)
			_, err = s.Send(ctx, "two", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			Expect(backend.StreamCalls).To(HaveLen(2))
			Expect(backend.StreamCalls[0].Opts.ChatID).To(BeEmpty())
			Expect(backend.StreamCalls[1].Opts.ChatID).To(Equal("chat-1"))
		})

		It("titles the chat after the first exchange only", func() {
			backend.TitleReply = `"Greeting Exchange."`

			_, err := s.Send(ctx, "hello", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(backend.ChatTitle("chat-1")).To(Equal("Greeting Exchange"))
			Expect(s.Title()).To(Equal("Greeting Exchange"))

			_, err = s.Send(ctx, "again", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(backend.CompletionCalls).To(HaveLen(1))
		})

		It("falls back to the user message when titling fails", func() {
			backend.TitleErr = errors.New("no model")

			_, err := s.Send(ctx, "What is the capital of France?", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(backend.ChatTitle("chat-1")).To(Equal("What is the capital of France?"))
		})

		It("records an inline error when the request fails", func() {
			backend.StreamErr = &client.RequestFailedError{Status: 503, StatusText: "Service Unavailable"}

			reply, err := s.Send(ctx, "hello", nil)
			Expect(reply).To(BeNil())

			var reqErr *client.RequestFailedError
			Expect(errors.As(err, &reqErr)).To(BeTrue())

			msgs := s.Messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Failed).To(BeTrue())
			Expect(msgs[1].Content).To(Equal("Error: API error: 503 Service Unavailable"))
			Expect(pub.Events()).To(BeEmpty())

			By("leaving the failure out of the next request")
			_, err = s.Send(ctx, "retry", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(backend.StreamCalls[1].Messages).To(Equal([]llm.Message{
				llm.NewTextMessage(llm.RoleUser, "hello"),
				llm.NewTextMessage(llm.RoleUser, "retry"),
			}))
		})

		It("records an inline error when the stream fails mid-read", func() {
			body := testutils.NewChunkedBody(testutils.DeltaFrame("par"))
			body.Final = errors.New("connection reset")
			backend.QueueReply(body)

			reply, err := s.Send(ctx, "hello", nil)
			Expect(reply.Status).To(Equal(stream.StatusFailed))

			var readErr *stream.ReadError
			Expect(errors.As(err, &readErr)).To(BeTrue())
			Expect(readErr.Partial).To(Equal("par"))

			msgs := s.Messages()
			Expect(msgs[len(msgs)-1].Failed).To(BeTrue())
			Expect(msgs[len(msgs)-1].Content).To(HavePrefix("Error: reading stream"))
			Expect(backend.StoredMessages("chat-1")).To(HaveLen(1))

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal("failed"))
			Expect(events[0].Error).To(ContainSubstring("connection reset"))
		})

		It("fails without streaming when the chat cannot be created", func() {
			backend.CreateErr = errors.New("storage offline")

			_, err := s.Send(ctx, "hello", nil)
			Expect(err).To(MatchError(ContainSubstring("storage offline")))
			Expect(backend.StreamCalls).To(BeEmpty())
			Expect(s.Messages()[0].Content).To(Equal("Error: creating chat: storage offline"))
		})

		It("reports truncated replies", func() {
			backend.QueueReply(io.NopCloser(strings.NewReader(testutils.SSEBody(false, "cut"))))

			reply, err := s.Send(ctx, "hello", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(reply.Status).To(Equal(stream.StatusDone))
			Expect(reply.Truncated).To(BeTrue())
			Expect(pub.Events()[0].Truncated).To(BeTrue())
		})
	})

	Describe("Stop", func() {
		It("keeps the partial reply", func() {
			backend.QueueText("one", "two", "three")

			reply, err := s.Send(ctx, "count", func(fragment, _ string) {
				if fragment == "one" {
					s.Stop()
				}
			})
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			Expect(reply.Status).To(Equal(stream.StatusCancelled))
			Expect(reply.Message.Content).To(Equal("one"))
			Expect(contents(s.Messages())).To(Equal([]string{"user:count", "assistant:one"}))
			Expect(backend.StoredMessages("chat-1")[1].Content).To(Equal("one"))

			events := pub.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal("cancelled"))
			Expect(events[0].Response).To(Equal("one"))
			Expect(events[0].Error).To(BeEmpty())
		})

		It("is a no-op when nothing is streaming", func() {
			s.Stop()
			_, err := s.Send(ctx, "hello", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(contents(s.Messages())).To(Equal([]string{"user:hello", "assistant:ok"}))
		})

		It("supersedes the in-flight reply when a new message is sent", func() {
			pr, pw := io.Pipe()
			backend.QueueReply(pr)
			backend.QueueText("second answer")

			firstDone := make(chan *session.Reply, 1)
			gotPartial := make(chan string, 1)
			go func() {
				defer GinkgoRecover()
				reply, err := s.Send(ctx, "first", func(fragment, _ string) {
					select {
					case gotPartial <- fragment:
					default:
					}
				})
				Expect(err).NotTo(HaveOccurred())
				firstDone <- reply
			}()

			go func() {
				_, _ = pw.Write([]byte(testutils.DeltaFrame("partial")))
			}()
			Eventually(gotPartial).Should(Receive(Equal("partial")))
			Expect(s.Streaming()).To(BeTrue())

			secondDone := make(chan error, 1)
			go func() {
				_, err := s.Send(ctx, "second", nil)
				secondDone <- err
			}()

			// Content-free frames unblock the pending read until the first
			// stream observes the stop.
			keepAlive := []byte(testutils.DeltaFrame(""))
			var first *session.Reply
			Eventually(func() bool {
				select {
				case first = <-firstDone:
					return true
				default:
					go func() { _, _ = pw.Write(keepAlive) }()
					return false
				}
			}).Should(BeTrue())
			Expect(first.Status).To(Equal(stream.StatusCancelled))
			Eventually(secondDone).Should(Receive(BeNil()))
			s.Wait()
			_ = pw.Close()

			Expect(contents(s.Messages())).To(Equal([]string{
				"user:first",
				"assistant:partial",
				"user:second",
				"assistant:second answer",
			}))
		})
	})

	Describe("Load and NewChat", func() {
		It("loads a stored chat", func() {
			agentID := "agent-9"
			backend.Chats["stored"] = &client.Chat{
				ID:      "stored",
				Title:   "Old Chat",
				AgentID: &agentID,
				Messages: []client.StoredMessage{
					{ID: "m1", Role: "user", Content: "q", Timestamp: "2024-05-01T10:00:00"},
					{ID: "m2", Role: "assistant", Content: "a", Timestamp: "2024-05-01T10:00:01"},
				},
			}

			Expect(s.Load(ctx, "stored")).To(Succeed())
			Expect(s.ChatID()).To(Equal("stored"))
			Expect(s.Title()).To(Equal("Old Chat"))
			Expect(contents(s.Messages())).To(Equal([]string{"user:q", "assistant:a"}))
			Expect(s.Messages()[0].Timestamp.IsZero()).To(BeFalse())

			_, err := s.Send(ctx, "follow up", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()
			Expect(backend.StreamCalls[0].Messages).To(HaveLen(3))
			Expect(backend.CompletionCalls).To(BeEmpty())
		})

		It("fails to load a missing chat", func() {
			err := s.Load(ctx, "missing")
			Expect(client.IsNotFound(err)).To(BeTrue())
		})

		It("starts a new chat", func() {
			_, err := s.Send(ctx, "hello", nil)
			Expect(err).NotTo(HaveOccurred())
			s.Wait()

			chat, err := s.NewChat(ctx, "agent-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(chat.ID).To(Equal("chat-2"))
			Expect(s.ChatID()).To(Equal("chat-2"))
			Expect(s.Messages()).To(BeEmpty())
			Expect(backend.Chats["chat-2"].AgentID).To(HaveValue(Equal("agent-2")))
		})
	})
})
