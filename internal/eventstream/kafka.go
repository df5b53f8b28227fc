// Package eventstream forwards assignment events from the in-process bus to
// Kafka so downstream systems (payroll, reporting) can consume them.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kazz187/sitecrew/internal/eventbus"
)

const defaultWriteTimeout = 3 * time.Second

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	bus     *eventbus.Bus
	writer  Writer
	timeout time.Duration
}

// NewKafkaWriter builds a writer that hashes on the message key, keeping
// every event of one worker's day on one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

func NewPublisher(bus *eventbus.Bus, writer Writer) *Publisher {
	return &Publisher{bus: bus, writer: writer, timeout: defaultWriteTimeout}
}

// Run forwards events until ctx is done, then closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	subID, ch := p.bus.Subscribe(1024)
	defer p.bus.Unsubscribe(subID)
	defer func() {
		if err := p.writer.Close(); err != nil {
			slog.Error("event stream: failed to close kafka writer", "error", err)
		}
	}()

	slog.Info("event stream publisher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("event stream publisher stopped")
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, event); err != nil {
				slog.ErrorContext(ctx, "event stream: failed to publish", "event_id", event.ID, "type", event.Type,
					"assignment_id", event.Subject.AssignmentID, "error", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, event *eventbus.Event) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(wctx, msg)
}

func messageKey(s eventbus.Subject) string {
	return fmt.Sprintf("%s:%s", s.WorkerID, s.Day)
}

func toMessage(event *eventbus.Event) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event %s: %w", event.ID, err)
	}
	return kafka.Message{
		Key:   []byte(messageKey(event.Subject)),
		Value: value,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	}, nil
}
