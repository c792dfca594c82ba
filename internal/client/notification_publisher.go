package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	natsclient "github.com/aprovia-ai/be-ap-autoapprove/internal/nats"
)

// NotificationPublisher publishes approval decision events to NATS JetStream
// for consumption by the notifications service.
//
// Subject convention: notifications.ap.<event_type>
// Event types: invoice_auto_approved, invoice_sent_to_review,
//              invoice_manually_approved, invoice_rejected,
//              invoice_decision_conflict
//
// All publish operations are non-fatal. Errors are logged but never propagated
// to the caller, so notification failures never interrupt approval processing.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	GroupID      string                 `json:"group_id"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS client.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishInvoiceEvent publishes an invoice decision event.
// Subject: notifications.ap.<eventType>
func (p *NotificationPublisher) PublishInvoiceEvent(ctx context.Context, eventType, invoiceID, groupID, actorID string, recipients []string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	severity := "info"
	if eventType == "invoice_decision_conflict" {
		severity = "warning"
	}

	event := &NotificationEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		GroupID:      groupID,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "invoice",
		ResourceID:   invoiceID,
		Severity:     severity,
		Category:     "ap_approval",
		OccurredAt:   time.Now().UTC(),
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.ap.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("invoice_id", invoiceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("invoice_id", invoiceID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
