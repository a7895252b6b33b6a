package model

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Exam is the exam metadata fetched from the remote service.
// StartTime/EndTime are optional; a missing or unparseable pair falls
// through the deadline resolution chain instead of failing the load.
type Exam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	DurationMinutes int        `json:"duration_minutes"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
}

// Duration returns the exam length, or zero when the server did not
// provide one.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question is a single exam question, read-only for the session.
type Question struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Difficulty string    `json:"difficulty"`
	Body       string    `json:"body"`
	Order      int       `json:"order"`
}

// SortQuestions orders questions by their fixed Order field. The order
// never changes for the lifetime of a session once loaded.
func SortQuestions(questions []Question) {
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Order < questions[j].Order
	})
}

// RegistrationStatus enumerates a student's registration states.
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusInProgress RegistrationStatus = "in_progress"
	RegistrationStatusCompleted  RegistrationStatus = "completed"
)

// Registration links a student to an exam attempt on the server side.
type Registration struct {
	ID        uuid.UUID          `json:"id"`
	ExamID    uuid.UUID          `json:"exam_id"`
	StudentID uuid.UUID          `json:"student_id"`
	Status    RegistrationStatus `json:"status"`
}
