// Package kafka publishes save events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/graphstack/pkg/eventstream"
	"github.com/papercomputeco/graphstack/pkg/logger"
)

// DefaultTopic is used when Config.Topic is empty.
const DefaultTopic = "graphstack.saves"

// Config configures the Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses. Required.
	Brokers []string

	// Topic is the destination topic (defaults to DefaultTopic).
	Topic string

	// WriteTimeout bounds a single publish (defaults to 10s).
	WriteTimeout time.Duration

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// messageWriter is the subset of kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes each event as one message keyed by its source context, so
// events from one context land on one partition in order.
type Publisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPublisher creates a publisher backed by a kafka.Writer.
func NewPublisher(c Config) (*Publisher, error) {
	if len(c.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if c.Topic == "" {
		c.Topic = DefaultTopic
	}

	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(c.Brokers...),
		Topic:                  c.Topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, c), nil
}

func newPublisher(w messageWriter, c Config) *Publisher {
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	log := c.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		writer:  w,
		topic:   c.Topic,
		timeout: c.WriteTimeout,
		logger:  log.With("publisher", "kafka", "topic", c.Topic),
	}
}

// PublishSave marshals the event and writes it to the topic.
func (p *Publisher) PublishSave(ctx context.Context, event *eventstream.SavePersistedEvent) error {
	if event == nil {
		return eventstream.ErrNilSaveEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal save event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(event.Source.Context),
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.EventID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish save event %s: %w", event.EventID, err)
	}

	p.logger.Debug("published save event", "event_id", event.EventID, "context", event.Source.Context)
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
