package approval

import "github.com/pesio-ai/be-hr-timesheets/internal/repository"

// Event is something that happens to a timesheet.
type Event string

const (
	EventSubmit         Event = "submit"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventRecall         Event = "recall"
	EventClearRejection Event = "clear_rejection"
	EventEdit           Event = "edit"
	EventDelete         Event = "delete"
)

// Statuses an owner may act from. Admin edits and deletes bypass this table.
var transitionMap = map[Event][]repository.TimesheetStatus{
	EventSubmit:         {repository.StatusDraft, repository.StatusRejected},
	EventApprove:        {repository.StatusSubmitted},
	EventReject:         {repository.StatusSubmitted},
	EventRecall:         {repository.StatusSubmitted},
	EventClearRejection: {repository.StatusRejected},
	EventEdit:           {repository.StatusDraft, repository.StatusRejected},
	EventDelete:         {repository.StatusDraft},
}

// ValidTransition reports whether event may happen while in status from.
func ValidTransition(event Event, from repository.TimesheetStatus) bool {
	allowed, ok := transitionMap[event]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
