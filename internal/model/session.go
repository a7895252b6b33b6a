package model

import (
	"time"
)

// SnapshotSchemaVersion is bumped whenever the persisted snapshot layout
// changes incompatibly. A snapshot with a different version is discarded
// on resume and the session starts fresh.
const SnapshotSchemaVersion = 1

// SessionLifecycleState enumerates the overall session states.
type SessionLifecycleState string

const (
	SessionLoading    SessionLifecycleState = "LOADING"
	SessionInProgress SessionLifecycleState = "IN_PROGRESS"
	SessionFinalizing SessionLifecycleState = "FINALIZING"
	SessionCompleted  SessionLifecycleState = "COMPLETED"
	SessionErrored    SessionLifecycleState = "ERRORED"
)

// AnswerState is the derived per-question state. It is never stored;
// it is computed from the snapshot maps.
type AnswerState string

const (
	AnswerDraft     AnswerState = "DRAFT"
	AnswerSaved     AnswerState = "SAVED"
	AnswerSubmitted AnswerState = "SUBMITTED" // terminal
)

// DeadlineWindow is the absolute start/end of a session, persisted as
// epoch milliseconds. Once resolved for a session id it is immutable.
type DeadlineWindow struct {
	StartMS int64 `json:"start"`
	EndMS   int64 `json:"end"`
}

// NewDeadlineWindow builds a window from absolute instants.
func NewDeadlineWindow(start, end time.Time) DeadlineWindow {
	return DeadlineWindow{StartMS: start.UnixMilli(), EndMS: end.UnixMilli()}
}

// Start returns the start instant.
func (w DeadlineWindow) Start() time.Time { return time.UnixMilli(w.StartMS) }

// End returns the end instant.
func (w DeadlineWindow) End() time.Time { return time.UnixMilli(w.EndMS) }

// Valid reports whether the window holds the End >= Start invariant and
// carries real instants.
func (w DeadlineWindow) Valid() bool {
	return w.StartMS > 0 && w.EndMS >= w.StartMS
}

// Remaining computes the whole seconds left at the given instant,
// clamped at zero. Always recomputed from wall clock, never decremented,
// so the value self-corrects after a stall.
func (w DeadlineWindow) Remaining(now time.Time) int64 {
	left := w.EndMS - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return left / 1000
}

// ActiveDraft is the editor content of the currently open question.
type ActiveDraft struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

// SessionSnapshot is the unit persisted per exam: the only source of
// truth across reloads. Saves are whole-snapshot, last writer wins.
type SessionSnapshot struct {
	SchemaVersion        int             `json:"schemaVersion"`
	SessionID            string          `json:"sessionId"`
	CurrentQuestionIndex int             `json:"currentQuestionIndex"`
	ActiveDraft          ActiveDraft     `json:"activeDraft"`
	SavedAnswers         map[string]string `json:"savedAnswers"`
	SubmittedAnswers     map[string]string `json:"submittedAnswers"`
	AttemptNumbers       map[string]int    `json:"attemptNumbers"`
	DeadlineWindow       *DeadlineWindow   `json:"deadlineWindow,omitempty"`
	LastPersistedAt      int64             `json:"lastPersistedAt"`
}

// NewSessionSnapshot creates a fresh snapshot for a new attempt.
func NewSessionSnapshot(sessionID, language string) *SessionSnapshot {
	return &SessionSnapshot{
		SchemaVersion:    SnapshotSchemaVersion,
		SessionID:        sessionID,
		ActiveDraft:      ActiveDraft{Language: language},
		SavedAnswers:     map[string]string{},
		SubmittedAnswers: map[string]string{},
		AttemptNumbers:   map[string]int{},
	}
}

// EnsureMaps backfills nil maps after JSON decoding so callers can
// assign without nil checks.
func (s *SessionSnapshot) EnsureMaps() {
	if s.SavedAnswers == nil {
		s.SavedAnswers = map[string]string{}
	}
	if s.SubmittedAnswers == nil {
		s.SubmittedAnswers = map[string]string{}
	}
	if s.AttemptNumbers == nil {
		s.AttemptNumbers = map[string]int{}
	}
}

// IsSubmitted reports whether the question's answer is terminal.
func (s *SessionSnapshot) IsSubmitted(questionID string) bool {
	_, ok := s.SubmittedAnswers[questionID]
	return ok
}

// AnswerStateOf derives the lifecycle state of one question.
func (s *SessionSnapshot) AnswerStateOf(questionID string) AnswerState {
	if s.IsSubmitted(questionID) {
		return AnswerSubmitted
	}
	if _, ok := s.SavedAnswers[questionID]; ok {
		return AnswerSaved
	}
	return AnswerDraft
}
