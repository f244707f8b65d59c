package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (r *recordingPublisher) Publish(_ context.Context, subject string, data []byte) error {
	r.subjects = append(r.subjects, subject)
	r.payloads = append(r.payloads, data)
	return r.err
}

func TestPublishTimesheetEvent(t *testing.T) {
	pub := &recordingPublisher{}
	p := NewNotificationPublisher(pub, zerolog.Nop())

	p.PublishTimesheetEvent(context.Background(), EventTimesheetApprovalRequired, "ts-1", "emp", []string{"sup"},
		map[string]interface{}{"week_ending": "2026-10-11"})

	require.Len(t, pub.subjects, 1)
	assert.Equal(t, "notifications.timesheets.approval_required", pub.subjects[0])

	var event NotificationEvent
	require.NoError(t, json.Unmarshal(pub.payloads[0], &event))
	assert.Equal(t, "timesheet", event.ResourceType)
	assert.Equal(t, "ts-1", event.ResourceID)
	assert.Equal(t, []string{"sup"}, event.Recipients)
	assert.True(t, event.IsActionable)
}

func TestPublishSkipsWithoutRecipients(t *testing.T) {
	pub := &recordingPublisher{}
	NewNotificationPublisher(pub, zerolog.Nop()).
		PublishTimesheetEvent(context.Background(), EventTimesheetApproved, "ts-1", "m", nil, nil)
	assert.Empty(t, pub.subjects)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	p := NewNotificationPublisher(pub, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.PublishTimesheetEvent(context.Background(), EventTimesheetRejected, "ts-1", "m", []string{"emp"}, nil)
	})
	assert.Len(t, pub.subjects, 1)
}

func TestNilPublisherIsNoop(t *testing.T) {
	var p *NotificationPublisher
	assert.NotPanics(t, func() {
		p.PublishTimesheetEvent(context.Background(), EventTimesheetSubmitted, "ts-1", "emp", []string{"sup"}, nil)
	})
	assert.NotPanics(t, func() {
		NewNotificationPublisher(nil, zerolog.Nop()).
			PublishTimesheetEvent(context.Background(), EventTimesheetSubmitted, "ts-1", "emp", []string{"sup"}, nil)
	})
}
