// Package kafka publishes ledger events to a Kafka topic. Register the
// Publisher as a ledger plugin; every committed posting, void, billing run
// and integrity check becomes one JSON message.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rentbook/ledger/journal"
	"github.com/rentbook/ledger/plugin"
	"github.com/rentbook/ledger/recurring"
)

// DefaultTopic receives all ledger events unless WithTopic is used.
const DefaultTopic = "ledger.events"

// Event types carried in Envelope.Type.
const (
	EventGroupPosted       = "ledger.group.posted"
	EventGroupVoided       = "ledger.group.voided"
	EventBillingRunDone    = "ledger.billing.run_completed"
	EventIntegrityChecked  = "ledger.integrity.checked"
	EventIntegrityMismatch = "ledger.integrity.mismatch"
)

var (
	_ plugin.Plugin                = (*Publisher)(nil)
	_ plugin.OnGroupPosted         = (*Publisher)(nil)
	_ plugin.OnGroupVoided         = (*Publisher)(nil)
	_ plugin.OnBillingRunCompleted = (*Publisher)(nil)
	_ plugin.OnIntegrityChecked    = (*Publisher)(nil)
	_ plugin.OnShutdown            = (*Publisher)(nil)
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher writes ledger events to Kafka.
type Publisher struct {
	writer Writer
	topic  string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithWriter replaces the Kafka writer, mainly for tests.
func WithWriter(w Writer) Option {
	return func(p *Publisher) { p.writer = w }
}

// NewPublisher creates a publisher writing to brokers.
func NewPublisher(brokers []string, opts ...Option) *Publisher {
	p := &Publisher{
		topic:  DefaultTopic,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.writer == nil {
		p.writer = &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Publisher) Name() string { return "kafka-publisher" }

// OnGroupPosted implements plugin.OnGroupPosted. Messages are keyed by
// group ID so a group's post and void land on the same partition.
func (p *Publisher) OnGroupPosted(ctx context.Context, g *journal.PostingGroup) error {
	return p.publish(ctx, g.ID.String(), EventGroupPosted, g)
}

// OnGroupVoided implements plugin.OnGroupVoided.
func (p *Publisher) OnGroupVoided(ctx context.Context, res *journal.VoidResult) error {
	var key string
	if len(res.Voided) > 0 {
		key = res.Voided[0].GroupID.String()
	}
	return p.publish(ctx, key, EventGroupVoided, res)
}

// OnBillingRunCompleted implements plugin.OnBillingRunCompleted.
func (p *Publisher) OnBillingRunCompleted(ctx context.Context, report *recurring.RunReport, elapsed time.Duration) error {
	posted, skipped, errored := report.Counts()
	return p.publish(ctx, report.ID.String(), EventBillingRunDone, map[string]any{
		"run_id":     report.ID.String(),
		"period":     report.Period,
		"as_of":      report.AsOf,
		"posted":     posted,
		"skipped":    skipped,
		"errored":    errored,
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

// OnIntegrityChecked implements plugin.OnIntegrityChecked.
func (p *Publisher) OnIntegrityChecked(ctx context.Context, report *journal.IntegrityReport) error {
	event := EventIntegrityChecked
	if !report.Balanced {
		event = EventIntegrityMismatch
	}
	return p.publish(ctx, "integrity", event, report)
}

// OnShutdown implements plugin.OnShutdown.
func (p *Publisher) OnShutdown(context.Context) error {
	return p.writer.Close()
}

func (p *Publisher) publish(ctx context.Context, key, eventType string, data any) error {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now().UTC(),
		Data:       data,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", eventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: publish %s: %w", eventType, err)
	}
	p.logger.Debug("ledger event published", "type", eventType, "key", key, "topic", p.topic)
	return nil
}
