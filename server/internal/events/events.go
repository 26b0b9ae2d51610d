package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/thermowatch/thermowatch/pkg/types"
	"github.com/thermowatch/thermowatch/server/internal/compute"
)

// TypeMeasurementRecorded is the event type for a newly recorded measurement.
const TypeMeasurementRecorded = "measurement.recorded"

// Event is the JSON payload of one measurement event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	DeviceID  string          `json:"device_id,omitempty"`
	Source    types.Source    `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Metrics   compute.Metrics `json:"metrics"`
	Persisted bool            `json:"persisted"`
}

// Key returns the partition key: the device ID when known, else the source.
func (e Event) Key() string {
	if e.DeviceID != "" {
		return e.DeviceID
	}
	return string(e.Source)
}

// Publisher delivers measurement events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// messageWriter is the subset of *kafka.Writer used here; tests substitute a fake.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events to a topic.
type Kafka struct {
	w     messageWriter
	topic string
}

// NewKafka returns a Kafka publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	slog.Info("events: kafka publisher ready", "brokers", brokers, "topic", topic)
	return &Kafka{w: w, topic: topic}
}

// Publish writes e as one message keyed by e.Key().
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.Key()),
		Value: value,
		Time:  e.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka write %s: %v", types.ErrNetworkUnavailable, k.topic, err)
	}
	slog.Debug("events: published", "topic", k.topic, "key", e.Key(), "id", e.ID)
	return nil
}

// Close flushes pending writes and closes the writer.
func (k *Kafka) Close() error {
	return k.w.Close()
}
