package eventstream_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lumina/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals ExchangeCompletedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.ExchangeCompletedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeExchangeCompleted,
			EventID:       "evt_123",
			EmittedAt:     now,
			ChatID:        "chat-1",
			Model:         "mlx-community/Mistral-7B-Instruct-v0.3-4bit",
			Status:        "done",
			StartedAt:     now.Add(-2 * time.Second),
			DurationMs:    2000,
			Fragments:     2,
			Prompt:        "hello",
			Response:      "hi there",
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		for _, key := range []string{
			"schema_version", "event_type", "event_id", "emitted_at", "chat_id",
			"model", "status", "truncated", "started_at", "duration_ms", "prompt", "response",
		} {
			Expect(got).To(HaveKey(key))
		}
		Expect(got).NotTo(HaveKey("error"))
		Expect(got).NotTo(HaveKey("agent_id"))
	})

	It("stamps new events", func() {
		a := eventstream.NewExchangeCompletedEvent()
		b := eventstream.NewExchangeCompletedEvent()

		Expect(a.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(a.EventType).To(Equal("lumina.exchange.completed"))
		Expect(strings.HasPrefix(a.EventID, "evt_")).To(BeTrue())
		Expect(a.EventID).NotTo(Equal(b.EventID))
		Expect(a.EmittedAt).To(BeTemporally("~", time.Now(), time.Minute))
	})

	It("provides ErrNilExchangeEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilExchangeEvent).To(MatchError("nil exchange event"))
	})
})
