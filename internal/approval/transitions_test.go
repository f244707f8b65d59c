package approval

import (
	"testing"

	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

func TestValidTransition(t *testing.T) {
	cases := []struct {
		event Event
		from  repository.TimesheetStatus
		valid bool
	}{
		{EventSubmit, repository.StatusDraft, true},
		{EventSubmit, repository.StatusRejected, true},
		{EventSubmit, repository.StatusSubmitted, false},
		{EventSubmit, repository.StatusApproved, false},
		{EventApprove, repository.StatusSubmitted, true},
		{EventApprove, repository.StatusDraft, false},
		{EventApprove, repository.StatusApproved, false},
		{EventReject, repository.StatusSubmitted, true},
		{EventReject, repository.StatusRejected, false},
		{EventRecall, repository.StatusSubmitted, true},
		{EventRecall, repository.StatusApproved, false},
		{EventClearRejection, repository.StatusRejected, true},
		{EventClearRejection, repository.StatusSubmitted, false},
		{EventEdit, repository.StatusDraft, true},
		{EventEdit, repository.StatusRejected, true},
		{EventEdit, repository.StatusSubmitted, false},
		{EventDelete, repository.StatusDraft, true},
		{EventDelete, repository.StatusApproved, false},
		{Event("unknown"), repository.StatusDraft, false},
	}

	for _, tt := range cases {
		if got := ValidTransition(tt.event, tt.from); got != tt.valid {
			t.Fatalf("ValidTransition(%q, %q)=%v, want %v", tt.event, tt.from, got, tt.valid)
		}
	}
}
