package testutils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/llm/provider/openai"
	"github.com/papercomputeco/lumina/pkg/stream"
)

// StreamCall records one StreamChatCompletion call.
type StreamCall struct {
	Model    string
	Messages []llm.Message
	Opts     client.ChatOptions
}

// MockBackend is an in-memory chat backend. Streamed replies are served
// from Bodies in order; when Bodies is exhausted the reply is "ok".
type MockBackend struct {
	mu sync.Mutex

	Chats  map[string]*client.Chat
	nextID int

	Bodies []io.ReadCloser

	// StreamErr fails the next StreamChatCompletion call before a stream is
	// created.
	StreamErr error

	TitleReply string
	TitleErr   error

	CreateErr error
	AddErr    error

	StreamCalls     []StreamCall
	CompletionCalls [][]llm.Message
	Updates         []client.ChatUpdate
}

// NewMockBackend creates an empty backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Chats:      make(map[string]*client.Chat),
		TitleReply: "Test Title",
	}
}

// QueueReply queues a body for the next streamed reply.
func (m *MockBackend) QueueReply(body io.ReadCloser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Bodies = append(m.Bodies, body)
}

// QueueText queues a complete streamed reply made of fragments.
func (m *MockBackend) QueueText(fragments ...string) {
	m.QueueReply(io.NopCloser(strings.NewReader(SSEBody(true, fragments...))))
}

func (m *MockBackend) StreamChatCompletion(_ context.Context, model string, messages []llm.Message, opts *client.ChatOptions) (*stream.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := StreamCall{Model: model, Messages: append([]llm.Message(nil), messages...)}
	if opts != nil {
		call.Opts = *opts
	}
	m.StreamCalls = append(m.StreamCalls, call)

	if m.StreamErr != nil {
		err := m.StreamErr
		m.StreamErr = nil
		return nil, err
	}

	var body io.ReadCloser
	if len(m.Bodies) > 0 {
		body, m.Bodies = m.Bodies[0], m.Bodies[1:]
	} else {
		body = io.NopCloser(strings.NewReader(SSEBody(true, "ok")))
	}
	return stream.New(body, openai.New()), nil
}

func (m *MockBackend) ChatCompletion(_ context.Context, _ string, messages []llm.Message, _ *client.ChatOptions) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompletionCalls = append(m.CompletionCalls, messages)
	if m.TitleErr != nil {
		return nil, m.TitleErr
	}
	return &llm.ChatResponse{Message: llm.NewTextMessage(llm.RoleAssistant, m.TitleReply)}, nil
}

func (m *MockBackend) CreateChat(_ context.Context, agentID, title string) (*client.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}

	m.nextID++
	chat := &client.Chat{ID: fmt.Sprintf("chat-%d", m.nextID), Title: "New Chat"}
	if title != "" {
		chat.Title = title
	}
	if agentID != "" {
		chat.AgentID = &agentID
	}
	m.Chats[chat.ID] = chat

	out := *chat
	return &out, nil
}

func (m *MockBackend) GetChat(_ context.Context, chatID string) (*client.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.Chats[chatID]
	if !ok {
		return nil, &client.RequestFailedError{Status: http.StatusNotFound, StatusText: "Not Found"}
	}
	out := *chat
	out.Messages = append([]client.StoredMessage(nil), chat.Messages...)
	return &out, nil
}

func (m *MockBackend) UpdateChat(_ context.Context, chatID string, update client.ChatUpdate) (*client.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.Chats[chatID]
	if !ok {
		return nil, &client.RequestFailedError{Status: http.StatusNotFound, StatusText: "Not Found"}
	}
	m.Updates = append(m.Updates, update)
	if update.Title != nil {
		chat.Title = *update.Title
	}
	if update.AgentID != nil {
		chat.AgentID = update.AgentID
	}
	out := *chat
	return &out, nil
}

func (m *MockBackend) AddMessage(_ context.Context, chatID string, msg client.NewMessage) (*client.StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AddErr != nil {
		return nil, m.AddErr
	}
	chat, ok := m.Chats[chatID]
	if !ok {
		return nil, &client.RequestFailedError{Status: http.StatusNotFound, StatusText: "Not Found"}
	}

	stored := client.StoredMessage{
		ID:        fmt.Sprintf("%s-m%d", chatID, len(chat.Messages)+1),
		Role:      msg.Role,
		Content:   msg.Content,
		Timestamp: "2024-05-01T10:00:00",
	}
	chat.Messages = append(chat.Messages, stored)
	return &stored, nil
}

// StoredMessages returns the messages stored for a chat.
func (m *MockBackend) StoredMessages(chatID string) []client.StoredMessage {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat, ok := m.Chats[chatID]
	if !ok {
		return nil
	}
	return append([]client.StoredMessage(nil), chat.Messages...)
}

// ChatTitle returns the stored title of a chat.
func (m *MockBackend) ChatTitle(chatID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chat, ok := m.Chats[chatID]; ok {
		return chat.Title
	}
	return ""
}
