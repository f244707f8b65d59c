package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Timesheet event types published on notifications.timesheets.<event>.
const (
	EventTimesheetSubmitted        = "submitted"
	EventTimesheetApprovalRequired = "approval_required"
	EventTimesheetApproved         = "approved"
	EventTimesheetRejected         = "rejected"
	EventTimesheetRecalled         = "recalled"
)

// Publisher is the transport the notifier writes to. *nats.Client from
// internal/platform/nats satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes timesheet workflow events for the
// notifications service.
//
// Publishing is non-fatal: errors are logged and never returned, so a
// notification outage never blocks an approval.
type NotificationPublisher struct {
	pub Publisher
	log zerolog.Logger
}

// NotificationEvent is the JSON document published per event.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil pub disables
// publishing.
func NewNotificationPublisher(pub Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{pub: pub, log: log}
}

// PublishTimesheetEvent publishes eventType for a timesheet to recipients.
func (p *NotificationPublisher) PublishTimesheetEvent(ctx context.Context, eventType, timesheetID, actorID string, recipients []string, payload map[string]interface{}) {
	if p == nil || p.pub == nil || len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "timesheet",
		ResourceID:   timesheetID,
		IsActionable: eventType == EventTimesheetApprovalRequired,
		Severity:     severityFor(eventType),
		Category:     "timesheet_approval",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.timesheets.%s", eventType)
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("timesheet_id", timesheetID).
			Msg("notification: failed to publish event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("timesheet_id", timesheetID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

func severityFor(eventType string) string {
	if eventType == EventTimesheetRejected {
		return "warning"
	}
	return "info"
}
