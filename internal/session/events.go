package session

import (
	"github.com/proctoraegis/examclient/internal/autosave"
	"github.com/proctoraegis/examclient/internal/model"
)

// EventKind discriminates controller events.
type EventKind string

const (
	// EventTick carries the remaining seconds, once per second.
	EventTick EventKind = "tick"
	// EventState carries a lifecycle state change.
	EventState EventKind = "state"
	// EventAutosave carries the autosave indicator status.
	EventAutosave EventKind = "autosave"
)

// Event is what the UI consumes from the controller. The channel is
// lossy for ticks and autosave statuses; state changes are the only
// events a consumer must not miss, and those are also readable via
// State().
type Event struct {
	Kind      EventKind
	Remaining int64
	State     model.SessionLifecycleState
	Autosave  autosave.Status
}

// FinalizeReason records what triggered finalization.
type FinalizeReason string

const (
	ReasonDeadlineExpired FinalizeReason = "deadline_expired"
	ReasonStudentSubmit   FinalizeReason = "student_submit"
)
