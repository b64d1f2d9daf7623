// Package events announces verification lifecycle changes to downstream
// consumers. The store stays the source of truth; a lost event never rolls
// back a state change.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Event types.
const (
	TypeCreated       = "verification.created"
	TypeStatusChanged = "verification.status_changed"
)

// LifecycleEvent is the message published for each created or transitioned record.
type LifecycleEvent struct {
	Type           string    `json:"type"`
	VerificationID string    `json:"verification_id"`
	MonoReference  string    `json:"mono_reference"`
	Status         string    `json:"status"`
	KYCLevel       string    `json:"kyc_level"`
	OccurredAt     time.Time `json:"occurred_at"`
	RequestID      string    `json:"request_id,omitempty"`
}

// Publisher delivers lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

// producer is the subset of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaPublisher produces JSON events keyed by mono reference, so every event
// for one verification lands on one partition in order.
type KafkaPublisher struct {
	client producer
	topic  string
}

func NewKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.MonoReference),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce lifecycle event: %w", err)
	}
	return nil
}

// LogPublisher writes events to the structured log. Used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	p.logger.InfoContext(ctx, "verification lifecycle event",
		"type", event.Type,
		"verification_id", event.VerificationID,
		"mono_reference", event.MonoReference,
		"status", event.Status,
		"request_id", event.RequestID,
	)
	return nil
}
