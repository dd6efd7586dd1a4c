// Package eventstream defines the events emitted after chat exchanges and
// the publishers that deliver them.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangeCompleted is emitted after an assistant reply ends,
	// whether it finished, was stopped or failed.
	EventTypeExchangeCompleted = "lumina.exchange.completed"
)

// ExchangeCompletedEvent is a transport-neutral event payload for one
// user message and the assistant reply streamed for it.
type ExchangeCompletedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	ChatID  string `json:"chat_id"`
	AgentID string `json:"agent_id,omitempty"`
	Model   string `json:"model"`

	// Status is the terminal stream status: done, cancelled or failed.
	Status    string `json:"status"`
	Truncated bool   `json:"truncated"`
	Error     string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Fragments  int       `json:"fragments"`

	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

// NewExchangeCompletedEvent returns an event stamped with a fresh ID and the
// current time.
func NewExchangeCompletedEvent() *ExchangeCompletedEvent {
	return &ExchangeCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeExchangeCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}
