// Package events publishes complaint lifecycle events to Kafka for
// downstream consumers (analytics, external dashboards). Publishing is best
// effort; the escalation transaction never depends on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/civicgrid/complaint-service/internal/config"
	"github.com/civicgrid/complaint-service/internal/database"
)

// EscalatedEvent is the payload published when a complaint is escalated.
type EscalatedEvent struct {
	ComplaintID       string    `json:"complaint_id"`
	TrackingCode      string    `json:"tracking_code"`
	Severity          string    `json:"severity"`
	CategoryID        string    `json:"category_id"`
	FromAuthorityID   *string   `json:"from_authority_id,omitempty"`
	TargetAuthorityID string    `json:"target_authority_id"`
	Reason            string    `json:"reason"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Publisher writes escalation events to Kafka.
type Publisher struct {
	cfg    config.KafkaConfig
	logger *slog.Logger
	writer *kafka.Writer
}

// NewPublisher creates a Kafka publisher for the escalation topic.
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.ComplaintEscalated,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}

	return &Publisher{
		cfg:    cfg,
		logger: logger,
		writer: writer,
	}
}

// PublishEscalated publishes a complaint.escalated event keyed by complaint ID.
func (p *Publisher) PublishEscalated(ctx context.Context, complaint *database.Complaint, targetAuthorityID, reason string) error {
	event := EscalatedEvent{
		ComplaintID:       complaint.ID,
		TrackingCode:      complaint.TrackingCode,
		Severity:          complaint.Severity,
		CategoryID:        complaint.CategoryID,
		FromAuthorityID:   complaint.AssignedAuthorityID,
		TargetAuthorityID: targetAuthorityID,
		Reason:            reason,
		OccurredAt:        time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize escalation event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(complaint.ID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte("complaint.escalated")},
		},
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to publish escalation event: %w", err)
	}

	p.logger.Debug("Escalation event published",
		"complaint_id", complaint.ID,
		"topic", p.cfg.Topics.ComplaintEscalated)
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
