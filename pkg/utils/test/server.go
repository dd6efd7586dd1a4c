package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/document"
	"github.com/papercomputeco/lumina/pkg/llm"
)

const fakeTimestamp = "2024-05-01T10:00:00"

// CompletionRequest is a decoded /v1/chat/completions request.
type CompletionRequest struct {
	ChatID      string        `json:"-"`
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature"`
	TopP        *float64      `json:"top_p"`
	MaxTokens   *int          `json:"max_tokens"`
}

// FakeServer is an in-memory inference server speaking the storage,
// documents, models and chat completions APIs over HTTP.
type FakeServer struct {
	*httptest.Server

	mu     sync.Mutex
	nextID int

	chats  map[string]*client.Chat
	agents map[string]*client.AgentConfig
	docs   map[string][]document.Document

	// LoadedModel is reported by /models/status. Empty means none.
	LoadedModel string

	// Replies are served in order to streaming completion requests. When
	// empty the reply is "ok".
	Replies []string

	// TitleReply answers non-streaming completion requests.
	TitleReply string

	// HoldStreams keeps streamed replies open after their body, sending SSE
	// comments until the client goes away.
	HoldStreams bool

	Completions []CompletionRequest
	Requests    []string
}

// NewFakeServer starts a FakeServer. Close it when done.
func NewFakeServer() *FakeServer {
	f := &FakeServer{
		chats:      make(map[string]*client.Chat),
		agents:     make(map[string]*client.AgentConfig),
		docs:       make(map[string][]document.Document),
		TitleReply: "Fake Title",
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// QueueReply queues a complete streamed reply made of fragments.
func (f *FakeServer) QueueReply(fragments ...string) {
	f.QueueRaw(SSEBody(true, fragments...))
}

// QueueRaw queues a raw SSE body.
func (f *FakeServer) QueueRaw(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Replies = append(f.Replies, body)
}

// AddChat stores a chat and returns its ID.
func (f *FakeServer) AddChat(title string, messages ...client.StoredMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID("chat")
	f.chats[id] = &client.Chat{
		ID:        id,
		Title:     title,
		Messages:  messages,
		CreatedAt: fakeTimestamp,
		UpdatedAt: fakeTimestamp,
	}
	return id
}

// AddAgent stores an agent and returns its ID.
func (f *FakeServer) AddAgent(name, prompt, category string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.newID("agent")
	f.agents[id] = &client.AgentConfig{
		ID:           id,
		Name:         name,
		SystemPrompt: prompt,
		Category:     &category,
		CreatedAt:    fakeTimestamp,
		UpdatedAt:    fakeTimestamp,
	}
	return id
}

// AddDocument attaches a document to a chat.
func (f *FakeServer) AddDocument(chatID string, doc document.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[chatID] = append(f.docs[chatID], doc)
}

// Chat returns a copy of a stored chat, or nil.
func (f *FakeServer) Chat(id string) *client.Chat {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.chats[id]
	if !ok {
		return nil
	}
	out := *c
	out.Messages = append([]client.StoredMessage(nil), c.Messages...)
	return &out
}

// ChatIDs returns the IDs of the stored chats, sorted.
func (f *FakeServer) ChatIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.chats)
}

// Agent returns a copy of a stored agent, or nil.
func (f *FakeServer) Agent(id string) *client.AgentConfig {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.agents[id]
	if !ok {
		return nil
	}
	out := *a
	return &out
}

// AgentCount returns the number of stored agents.
func (f *FakeServer) AgentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.agents)
}

// Documents returns the documents attached to a chat.
func (f *FakeServer) Documents(chatID string) []document.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]document.Document(nil), f.docs[chatID]...)
}

// CompletionRequests returns the completion requests received so far.
func (f *FakeServer) CompletionRequests() []CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CompletionRequest(nil), f.Completions...)
}

func (f *FakeServer) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *FakeServer) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.Requests = append(f.Requests, r.Method+" "+r.URL.RequestURI())
	f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case r.URL.Path == "/models/status" && r.Method == http.MethodGet:
		f.modelStatus(w)
	case r.URL.Path == "/v1/chat/completions" && r.Method == http.MethodPost:
		f.completion(w, r)
	case len(parts) >= 2 && parts[0] == "storage" && parts[1] == "agents":
		f.agentRoutes(w, r, parts[2:])
	case len(parts) >= 2 && parts[0] == "storage" && parts[1] == "chats":
		f.chatRoutes(w, r, parts[2:])
	default:
		notFound(w, "Not found")
	}
}

func (f *FakeServer) modelStatus(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status := client.ModelStatus{Loaded: f.LoadedModel != ""}
	if status.Loaded {
		model := f.LoadedModel
		status.CurrentModel = &model
	}
	writeJSON(w, status)
}

func (f *FakeServer) completion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.ChatID = r.URL.Query().Get("chat_id")

	f.mu.Lock()
	f.Completions = append(f.Completions, req)
	title := f.TitleReply
	hold := f.HoldStreams
	body := SSEBody(true, "ok")
	if req.Stream && len(f.Replies) > 0 {
		body, f.Replies = f.Replies[0], f.Replies[1:]
	}
	f.mu.Unlock()

	if !req.Stream {
		writeJSON(w, map[string]any{
			"id":      "chatcmpl-title",
			"object":  "chat.completion",
			"model":   req.Model,
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": title}, "finish_reason": "stop"}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = io.WriteString(w, body)
	flush(w)

	if !hold {
		return
	}
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func (f *FakeServer) agentRoutes(w http.ResponseWriter, r *http.Request, rest []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			out := []client.AgentConfig{}
			for _, id := range sortedKeys(f.agents) {
				out = append(out, *f.agents[id])
			}
			writeJSON(w, out)
		case http.MethodPost:
			var in client.NewAgent
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			a := &client.AgentConfig{
				ID:           f.newID("agent"),
				Name:         in.Name,
				SystemPrompt: in.SystemPrompt,
				CreatedAt:    fakeTimestamp,
				UpdatedAt:    fakeTimestamp,
			}
			if in.Description != "" {
				a.Description = &in.Description
			}
			if in.Category != "" {
				a.Category = &in.Category
			}
			f.agents[a.ID] = a
			writeJSON(w, a)
		case http.MethodDelete:
			f.agents = make(map[string]*client.AgentConfig)
			writeJSON(w, map[string]string{"message": "cleared"})
		}
		return
	}

	a, ok := f.agents[rest[0]]
	if !ok {
		notFound(w, "Agent not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, a)
	case http.MethodPatch:
		var u client.AgentUpdate
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if u.Name != nil {
			a.Name = *u.Name
		}
		if u.Description != nil {
			a.Description = u.Description
		}
		if u.SystemPrompt != nil {
			a.SystemPrompt = *u.SystemPrompt
		}
		if u.Category != nil {
			a.Category = u.Category
		}
		writeJSON(w, a)
	case http.MethodDelete:
		delete(f.agents, a.ID)
		writeJSON(w, map[string]string{"message": "deleted"})
	}
}

func (f *FakeServer) chatRoutes(w http.ResponseWriter, r *http.Request, rest []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case len(rest) == 0:
		f.chatCollection(w, r)
		return
	case len(rest) == 2 && rest[0] == "search" && r.Method == http.MethodGet:
		q := strings.ToLower(rest[1])
		out := []client.Chat{}
		for _, id := range sortedKeys(f.chats) {
			if strings.Contains(strings.ToLower(f.chats[id].Title), q) {
				out = append(out, *f.chats[id])
			}
		}
		writeJSON(w, out)
		return
	}

	chat, ok := f.chats[rest[0]]
	if !ok {
		notFound(w, "Chat not found")
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, chat)
		case http.MethodPatch:
			var u client.ChatUpdate
			if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if u.Title != nil {
				chat.Title = *u.Title
			}
			if u.AgentID != nil {
				chat.AgentID = u.AgentID
			}
			writeJSON(w, chat)
		case http.MethodDelete:
			delete(f.chats, chat.ID)
			delete(f.docs, chat.ID)
			writeJSON(w, map[string]string{"message": "deleted"})
		}
		return
	}

	switch rest[1] {
	case "messages":
		var in client.NewMessage
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg := client.StoredMessage{
			ID:        fmt.Sprintf("%s-m%d", chat.ID, len(chat.Messages)+1),
			Role:      in.Role,
			Content:   in.Content,
			Timestamp: fakeTimestamp,
		}
		chat.Messages = append(chat.Messages, msg)
		writeJSON(w, msg)
	case "documents":
		f.documentRoutes(w, r, chat.ID, rest[2:])
	default:
		notFound(w, "Not found")
	}
}

func (f *FakeServer) chatCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		out := []client.Chat{}
		for _, id := range sortedKeys(f.chats) {
			out = append(out, *f.chats[id])
		}
		writeJSON(w, out)
	case http.MethodPost:
		var in struct {
			AgentID string `json:"agent_id"`
			Title   string `json:"title"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)

		chat := &client.Chat{
			ID:        f.newID("chat"),
			Title:     "New Chat",
			Messages:  []client.StoredMessage{},
			CreatedAt: fakeTimestamp,
			UpdatedAt: fakeTimestamp,
		}
		if in.Title != "" {
			chat.Title = in.Title
		}
		if in.AgentID != "" {
			chat.AgentID = &in.AgentID
		}
		f.chats[chat.ID] = chat
		writeJSON(w, chat)
	case http.MethodDelete:
		f.chats = make(map[string]*client.Chat)
		f.docs = make(map[string][]document.Document)
		writeJSON(w, map[string]string{"message": "cleared"})
	}
}

func (f *FakeServer) documentRoutes(w http.ResponseWriter, r *http.Request, chatID string, rest []string) {
	docs := f.docs[chatID]

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, document.ListResponse{Documents: append([]document.Document{}, docs...), Total: len(docs)})
	case len(rest) == 0 && r.Method == http.MethodPost:
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		doc := document.Document{
			ID:        f.newID("doc"),
			Filename:  header.Filename,
			MimeType:  header.Header.Get("Content-Type"),
			SizeBytes: int64(len(data)),
			Status:    document.StatusReady,
			CreatedAt: fakeTimestamp,
		}
		f.docs[chatID] = append(docs, doc)
		writeJSON(w, document.UploadResponse{Document: doc, Message: "Document uploaded"})
	case len(rest) == 1 && rest[0] == "search" && r.Method == http.MethodPost:
		var in struct {
			Query string `json:"query"`
			TopK  int    `json:"top_k"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)

		resp := document.SearchResponse{Query: in.Query, Results: []document.SearchResult{}, DocumentsSearched: len(docs)}
		for i, d := range docs {
			if i >= in.TopK {
				break
			}
			resp.Results = append(resp.Results, document.SearchResult{
				Content:  "chunk of " + d.Filename + " about " + in.Query,
				Filename: d.Filename,
				Score:    0.9,
			})
		}
		writeJSON(w, resp)
	case len(rest) == 1:
		for i, d := range docs {
			if d.ID != rest[0] {
				continue
			}
			if r.Method == http.MethodDelete {
				f.docs[chatID] = append(docs[:i:i], docs[i+1:]...)
				writeJSON(w, map[string]string{"message": "deleted"})
				return
			}
			writeJSON(w, d)
			return
		}
		notFound(w, "Document not found")
	default:
		notFound(w, "Not found")
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
