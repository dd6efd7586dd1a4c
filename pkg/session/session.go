// Package session drives a chat conversation: it keeps the message history,
// persists it through the storage API and streams assistant replies, at most
// one at a time.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/eventstream"
	"github.com/papercomputeco/lumina/pkg/eventstream/nop"
	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/stream"
	"github.com/papercomputeco/lumina/pkg/title"
	"github.com/papercomputeco/lumina/pkg/utils"
)

// titleTimeout bounds background title generation.
const titleTimeout = 60 * time.Second

// Backend is the server API a session needs. *client.Client satisfies it.
type Backend interface {
	title.Completer

	StreamChatCompletion(ctx context.Context, model string, messages []llm.Message, opts *client.ChatOptions) (*stream.Stream, error)
	CreateChat(ctx context.Context, agentID, title string) (*client.Chat, error)
	GetChat(ctx context.Context, chatID string) (*client.Chat, error)
	UpdateChat(ctx context.Context, chatID string, update client.ChatUpdate) (*client.Chat, error)
	AddMessage(ctx context.Context, chatID string, msg client.NewMessage) (*client.StoredMessage, error)
}

// Message is a message of the conversation as shown to the user.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time

	// Failed marks the inline error notice recorded when a reply could not
	// be produced. Failed messages are shown but never sent back to the
	// model.
	Failed bool
}

// Reply describes how an assistant reply ended.
type Reply struct {
	Message   Message
	Status    stream.Status
	Truncated bool
	Stats     stream.Stats
}

// Session is a single conversation. Send must not be called concurrently
// with itself; Stop may be called from any goroutine.
type Session struct {
	backend   Backend
	titles    *title.Generator
	publisher eventstream.Publisher
	logger    *zap.Logger

	model           string
	titleModel      string
	temperature     *float64
	maxTokens       *int
	topP            *float64
	documentContext bool

	mu           sync.Mutex
	chatID       string
	chatTitle    string
	agentID      string
	systemPrompt string
	messages     []Message
	active       *stream.Stream
	stopped      bool
	done         chan struct{}

	background sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithModel sets the model replies are requested from.
func WithModel(model string) Option {
	return func(s *Session) {
		s.model = model
	}
}

// WithTitleModel sets the model used to title new chats. It defaults to the
// reply model.
func WithTitleModel(model string) Option {
	return func(s *Session) {
		s.titleModel = model
	}
}

// WithSampling sets the sampling parameters of every request. Nil values
// are left to the server.
func WithSampling(temperature *float64, maxTokens *int, topP *float64) Option {
	return func(s *Session) {
		s.temperature = temperature
		s.maxTokens = maxTokens
		s.topP = topP
	}
}

// WithDocumentContext makes requests carry the chat ID so the server can
// inject context from the chat's documents.
func WithDocumentContext(enabled bool) Option {
	return func(s *Session) {
		s.documentContext = enabled
	}
}

// WithPublisher sets where exchange events are published.
func WithPublisher(p eventstream.Publisher) Option {
	return func(s *Session) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Session with no active chat. The first Send creates one.
func New(backend Backend, model string, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		publisher: nop.NewPublisher(),
		logger:    zap.NewNop(),
		model:     model,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.titleModel == "" {
		s.titleModel = s.model
	}
	s.titles = title.NewGenerator(backend, s.titleModel, s.logger)
	return s
}

// SetAgent makes subsequent requests start with the agent's system prompt.
// New chats are created for the agent.
func (s *Session) SetAgent(agentID, systemPrompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agentID = agentID
	s.systemPrompt = systemPrompt
}

// SetDocumentContext turns document context on or off for subsequent
// requests.
func (s *Session) SetDocumentContext(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentContext = enabled
}

// AgentID returns the agent of the conversation, or "".
func (s *Session) AgentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentID
}

// ChatID returns the active chat, or "" before the first message.
func (s *Session) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Title returns the chat title, once known.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatTitle
}

// Model returns the model replies are requested from.
func (s *Session) Model() string {
	return s.model
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Streaming reports whether a reply is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// Stop cancels the in-flight reply, if any. The partial reply is kept. A
// Stop that arrives while the request is still being sent takes effect as
// soon as the reply starts streaming.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.active != nil {
		s.active.Stop()
	}
}

// Wait blocks until background work, such as title generation, finishes.
func (s *Session) Wait() {
	s.background.Wait()
}

// supersede stops the in-flight reply and waits for its exchange to finish
// recording.
func (s *Session) supersede(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.stopped = true
	if s.active != nil {
		s.active.Stop()
	}
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load replaces the conversation with a stored chat.
func (s *Session) Load(ctx context.Context, chatID string) error {
	if err := s.supersede(ctx); err != nil {
		return err
	}

	chat, err := s.backend.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("loading chat %s: %w", chatID, err)
	}

	messages := make([]Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		messages = append(messages, Message{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: utils.ParseTimestamp(m.Timestamp),
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chat.ID
	s.chatTitle = chat.Title
	s.messages = messages
	if chat.AgentID != nil {
		s.agentID = *chat.AgentID
	}
	return nil
}

// NewChat starts a new, empty chat on the server. An empty agentID uses the
// current agent.
func (s *Session) NewChat(ctx context.Context, agentID string) (*client.Chat, error) {
	if err := s.supersede(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if agentID == "" {
		agentID = s.agentID
	}
	s.mu.Unlock()

	chat, err := s.backend.CreateChat(ctx, agentID, "")
	if err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chat.ID
	s.chatTitle = chat.Title
	s.agentID = agentID
	s.messages = nil
	return chat, nil
}

// Send sends a user message and streams the reply, calling onFragment (if
// non-nil) with each fragment and the reply text so far.
//
// Blank content is ignored and returns a nil Reply. A reply still in flight
// is stopped first. A stopped reply is recorded with the text received so
// far and is not an error. When the reply fails, an inline "Error: ..."
// message is recorded and the error is returned.
func (s *Session) Send(ctx context.Context, content string, onFragment func(fragment, full string)) (*Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	if err := s.supersede(ctx); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.stopped = false
	s.mu.Unlock()
	defer close(done)

	reply, err := s.exchange(ctx, content, onFragment)
	if err != nil {
		s.logger.Debug("exchange failed", zap.Error(err))
		s.appendMessage(Message{
			ID:        uuid.NewString(),
			Role:      llm.RoleAssistant,
			Content:   "Error: " + err.Error(),
			Timestamp: time.Now(),
			Failed:    true,
		})
		return reply, err
	}
	return reply, nil
}

func (s *Session) exchange(ctx context.Context, content string, onFragment func(fragment, full string)) (*Reply, error) {
	chatID, err := s.ensureChat(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	history := s.requestHistory()
	firstExchange := len(history) == 0
	systemPrompt := s.systemPrompt
	agentID := s.agentID
	documentContext := s.documentContext
	s.mu.Unlock()

	s.appendMessage(Message{
		ID:        uuid.NewString(),
		Role:      llm.RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})
	if _, err := s.backend.AddMessage(ctx, chatID, client.NewMessage{Role: llm.RoleUser, Content: content}); err != nil {
		return nil, fmt.Errorf("saving message: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	if systemPrompt != "" {
		messages = append(messages, llm.NewTextMessage(llm.RoleSystem, systemPrompt))
	}
	messages = append(messages, history...)
	messages = append(messages, llm.NewTextMessage(llm.RoleUser, content))

	opts := &client.ChatOptions{
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
		TopP:        s.topP,
	}
	if documentContext {
		opts.ChatID = chatID
	}

	started := time.Now()
	st, err := s.backend.StreamChatCompletion(ctx, s.model, messages, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active = st
	if s.stopped {
		st.Stop()
	}
	s.mu.Unlock()

	text, streamErr := st.Collect(onFragment)

	s.mu.Lock()
	s.active = nil
	s.mu.Unlock()

	reply := &Reply{
		Status:    st.Status(),
		Truncated: st.Truncated(),
		Stats:     st.Stats(),
	}
	s.publish(ctx, chatID, agentID, content, st, started, streamErr)

	if streamErr != nil {
		return reply, streamErr
	}

	reply.Message = Message{
		ID:        uuid.NewString(),
		Role:      llm.RoleAssistant,
		Content:   text,
		Timestamp: time.Now(),
	}

	// A reply stopped before any text arrived leaves nothing to record.
	if text == "" && reply.Status == stream.StatusCancelled {
		return reply, nil
	}

	s.appendMessage(reply.Message)
	if _, err := s.backend.AddMessage(ctx, chatID, client.NewMessage{Role: llm.RoleAssistant, Content: text}); err != nil {
		return reply, fmt.Errorf("saving reply: %w", err)
	}

	if firstExchange {
		s.generateTitle(ctx, chatID, content, text)
	}

	return reply, nil
}

// ensureChat returns the active chat, creating one if needed.
func (s *Session) ensureChat(ctx context.Context) (string, error) {
	s.mu.Lock()
	chatID, agentID := s.chatID, s.agentID
	s.mu.Unlock()

	if chatID != "" {
		return chatID, nil
	}

	chat, err := s.backend.CreateChat(ctx, agentID, "")
	if err != nil {
		return "", fmt.Errorf("creating chat: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatID = chat.ID
	s.chatTitle = chat.Title
	return chat.ID, nil
}

// requestHistory returns the conversation as request messages. Callers hold
// s.mu.
func (s *Session) requestHistory() []llm.Message {
	history := make([]llm.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Failed {
			continue
		}
		history = append(history, llm.NewTextMessage(m.Role, m.Content))
	}
	return history
}

func (s *Session) appendMessage(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// generateTitle names the chat in the background. Failures are logged only.
func (s *Session) generateTitle(ctx context.Context, chatID, userMessage, reply string) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), titleTimeout)
		defer cancel()

		t := s.titles.Generate(tctx, userMessage, reply)
		if _, err := s.backend.UpdateChat(tctx, chatID, client.ChatUpdate{Title: &t}); err != nil {
			s.logger.Warn("failed to store chat title", zap.String("chat_id", chatID), zap.Error(err))
			return
		}

		s.mu.Lock()
		if s.chatID == chatID {
			s.chatTitle = t
		}
		s.mu.Unlock()

		s.logger.Debug("chat titled", zap.String("chat_id", chatID), zap.String("title", t))
	}()
}

func (s *Session) publish(ctx context.Context, chatID, agentID, prompt string, st *stream.Stream, started time.Time, streamErr error) {
	event := eventstream.NewExchangeCompletedEvent()
	event.ChatID = chatID
	event.AgentID = agentID
	event.Model = s.model
	event.Status = st.Status().String()
	event.Truncated = st.Truncated()
	event.StartedAt = started.UTC()
	event.DurationMs = time.Since(started).Milliseconds()
	event.Fragments = st.Stats().Fragments
	event.Prompt = prompt
	event.Response = st.Text()
	if streamErr != nil {
		event.Error = streamErr.Error()
	}

	if err := s.publisher.PublishExchange(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Warn("failed to publish exchange event", zap.String("event_id", event.EventID), zap.Error(err))
	}
}
