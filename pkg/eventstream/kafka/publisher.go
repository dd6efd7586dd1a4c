// Package kafka publishes exchange events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/eventstream"
)

const (
	// DefaultTopic receives exchange events when no topic is configured.
	DefaultTopic = "lumina.exchanges"

	defaultClientID     = "lumina"
	defaultBatchTimeout = 10 * time.Millisecond
)

// ErrNoBrokers is returned when the publisher is configured without brokers.
var ErrNoBrokers = errors.New("kafka publisher requires at least one broker")

// Config holds configuration for the Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses (host:port).
	Brokers []string

	// Topic defaults to DefaultTopic.
	Topic string

	// ClientID defaults to "lumina".
	ClientID string
}

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each event as one message keyed by chat ID, so the events
// of a chat stay ordered within a partition.
type Publisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewPublisher creates a Kafka publisher. No connection is made until the
// first event is published.
func NewPublisher(c Config, logger *zap.Logger) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	topic := c.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	clientID := c.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		BatchTimeout:           defaultBatchTimeout,
		AllowAutoTopicCreation: true,
		Transport: &kafkago.Transport{
			ClientID: clientID,
		},
	}

	logger.Debug("kafka publisher configured",
		zap.Strings("brokers", c.Brokers),
		zap.String("topic", topic),
	)

	return newPublisher(w, topic, logger), nil
}

func newPublisher(w messageWriter, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{writer: w, topic: topic, logger: logger}
}

// PublishExchange writes event to the topic.
func (p *Publisher) PublishExchange(ctx context.Context, event *eventstream.ExchangeCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilExchangeEvent
	}

	msg, err := newMessage(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing %s to %s: %w", event.EventID, p.topic, err)
	}

	p.logger.Debug("published exchange event",
		zap.String("topic", p.topic),
		zap.String("event_id", event.EventID),
		zap.String("chat_id", event.ChatID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newMessage(event *eventstream.ExchangeCompletedEvent) (kafkago.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshaling event %s: %w", event.EventID, err)
	}

	return kafkago.Message{
		Key:   []byte(event.ChatID),
		Value: value,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(event.SchemaVersion))},
		},
	}, nil
}
