package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Attachment is a file attached to a stored message.
type Attachment struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Filename  string `json:"filename"`
	Path      string `json:"path"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// StoredMessage is a message persisted on the server.
type StoredMessage struct {
	ID          string       `json:"id"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Timestamp   string       `json:"timestamp"`
	Attachments []Attachment `json:"attachments"`
}

// Chat is a stored chat session.
type Chat struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	AgentID   *string         `json:"agent_id"`
	Messages  []StoredMessage `json:"messages"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// ChatUpdate holds the chat fields to change. Nil fields are left alone.
type ChatUpdate struct {
	Title   *string `json:"title,omitempty"`
	AgentID *string `json:"agent_id,omitempty"`
}

// NewMessage is a message to append to a stored chat.
type NewMessage struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// AgentConfig is an agent preset as stored on the server.
type AgentConfig struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
	SystemPrompt string  `json:"system_prompt"`
	Icon         *string `json:"icon"`
	Color        *string `json:"color"`
	Category     *string `json:"category"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// NewAgent is the body of an agent creation request.
type NewAgent struct {
	Name         string `json:"name"`
	SystemPrompt string `json:"system_prompt"`
	Description  string `json:"description,omitempty"`
	Icon         string `json:"icon,omitempty"`
	Color        string `json:"color,omitempty"`
	Category     string `json:"category,omitempty"`
}

// AgentUpdate holds the agent fields to change. Nil fields are left alone.
type AgentUpdate struct {
	Name         *string `json:"name,omitempty"`
	Description  *string `json:"description,omitempty"`
	SystemPrompt *string `json:"system_prompt,omitempty"`
	Icon         *string `json:"icon,omitempty"`
	Color        *string `json:"color,omitempty"`
	Category     *string `json:"category,omitempty"`
}

const (
	chatsPath  = "/storage/chats"
	agentsPath = "/storage/agents"
)

func chatPath(chatID string) string {
	return chatsPath + "/" + url.PathEscape(chatID)
}

func agentPath(agentID string) string {
	return agentsPath + "/" + url.PathEscape(agentID)
}

// CreateChat creates an empty chat. Empty agentID and title are omitted and
// left for the server to fill in.
func (c *Client) CreateChat(ctx context.Context, agentID, title string) (*Chat, error) {
	body := struct {
		AgentID string `json:"agent_id,omitempty"`
		Title   string `json:"title,omitempty"`
	}{AgentID: agentID, Title: title}

	var out Chat
	if err := c.do(ctx, http.MethodPost, chatsPath, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChats returns every stored chat.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var out []Chat
	if err := c.do(ctx, http.MethodGet, chatsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChat returns a chat with its messages.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var out Chat
	if err := c.do(ctx, http.MethodGet, chatPath(chatID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateChat changes a chat's title or agent.
func (c *Client) UpdateChat(ctx context.Context, chatID string, update ChatUpdate) (*Chat, error) {
	var out Chat
	if err := c.do(ctx, http.MethodPatch, chatPath(chatID), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteChat deletes a chat.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, chatPath(chatID), nil, nil)
}

// ClearChats deletes every chat.
func (c *Client) ClearChats(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, chatsPath, nil, nil)
}

// AddMessage appends a message to a chat.
func (c *Client) AddMessage(ctx context.Context, chatID string, msg NewMessage) (*StoredMessage, error) {
	var out StoredMessage
	if err := c.do(ctx, http.MethodPost, chatPath(chatID)+"/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchChats returns chats matching query. An empty query lists all chats.
func (c *Client) SearchChats(ctx context.Context, query string) ([]Chat, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.ListChats(ctx)
	}

	var out []Chat
	if err := c.do(ctx, http.MethodGet, chatsPath+"/search/"+url.PathEscape(query), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateAgent stores a new agent preset.
func (c *Client) CreateAgent(ctx context.Context, agent NewAgent) (*AgentConfig, error) {
	var out AgentConfig
	if err := c.do(ctx, http.MethodPost, agentsPath, agent, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAgents returns every stored agent.
func (c *Client) ListAgents(ctx context.Context) ([]AgentConfig, error) {
	var out []AgentConfig
	if err := c.do(ctx, http.MethodGet, agentsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAgent returns a stored agent.
func (c *Client) GetAgent(ctx context.Context, agentID string) (*AgentConfig, error) {
	var out AgentConfig
	if err := c.do(ctx, http.MethodGet, agentPath(agentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateAgent changes fields of a stored agent.
func (c *Client) UpdateAgent(ctx context.Context, agentID string, update AgentUpdate) (*AgentConfig, error) {
	var out AgentConfig
	if err := c.do(ctx, http.MethodPatch, agentPath(agentID), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent deletes a stored agent.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, agentPath(agentID), nil, nil)
}

// ClearAgents deletes every stored agent.
func (c *Client) ClearAgents(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, agentsPath, nil, nil)
}
