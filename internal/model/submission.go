package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the server-side processing status of a submission.
// The client always creates submissions as pending; grading is not its
// concern.
type SubmissionStatus string

const (
	SubmissionStatusPending SubmissionStatus = "pending"
)

// CreateSubmissionRequest is the payload for submitting one answer.
type CreateSubmissionRequest struct {
	Source          string           `json:"source" binding:"required"`
	Language        string           `json:"language" binding:"required"`
	Status          SubmissionStatus `json:"status" binding:"required"`
	AttemptNumber   int              `json:"attempt_number" binding:"required,min=1"`
	ExamID          uuid.UUID        `json:"exam_id" binding:"required"`
	QuestionID      uuid.UUID        `json:"question_id" binding:"required"`
	RegistrationID  uuid.UUID        `json:"registration_id" binding:"required"`
	ClientTimestamp time.Time        `json:"client_timestamp" binding:"required"`
}

// SubmissionRecord is what the service returns for a created submission.
type SubmissionRecord struct {
	ID              uuid.UUID        `json:"id"`
	ExamID          uuid.UUID        `json:"exam_id"`
	QuestionID      uuid.UUID        `json:"question_id"`
	RegistrationID  uuid.UUID        `json:"registration_id"`
	Language        string           `json:"language"`
	Status          SubmissionStatus `json:"status"`
	AttemptNumber   int              `json:"attempt_number"`
	ClientTimestamp time.Time        `json:"client_timestamp"`
	CreatedAt       time.Time        `json:"created_at"`
}

// UpdateRegistrationRequest updates a registration's status. The client
// sends this best-effort during finalization.
type UpdateRegistrationRequest struct {
	Status RegistrationStatus `json:"status" binding:"required,oneof=registered in_progress completed"`
}
