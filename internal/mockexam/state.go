// Package mockexam is an in-memory stand-in for the remote exam
// service, serving exactly the contract the client consumes. It exists
// so the client can be developed and demoed without the real backend;
// durable storage is deliberately out of its scope.
package mockexam

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/proctoraegis/examclient/internal/model"
)

type user struct {
	Username     string
	PasswordHash string
	StudentID    uuid.UUID
}

// State holds the service's in-memory fixtures and submissions.
type State struct {
	mu            sync.Mutex
	users         map[string]user
	exam          model.Exam
	questions     []model.Question
	registrations map[uuid.UUID]*model.Registration // keyed by student id
	submissions   map[uuid.UUID]model.SubmissionRecord
}

// NewState seeds one exam, its questions and a demo student
// (demo / demo123) registered for it.
func NewState(bcryptCost int) (*State, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte("demo123"), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash demo password: %w", err)
	}

	studentID := uuid.New()
	examID := uuid.New()

	s := &State{
		users: map[string]user{
			"demo": {Username: "demo", PasswordHash: string(hash), StudentID: studentID},
		},
		exam: model.Exam{
			ID:              examID,
			Title:           "Data Structures & Algorithms Final Exam",
			DurationMinutes: 120,
		},
		questions: []model.Question{
			{
				ID:         uuid.New(),
				Title:      "Reverse a Linked List",
				Difficulty: "Medium",
				Body:       "Write a function to reverse a singly linked list iteratively.\n\nExample:\nInput: [1,2,3,4,5]\nOutput: [5,4,3,2,1]",
				Order:      0,
			},
			{
				ID:         uuid.New(),
				Title:      "Binary Tree Traversal",
				Difficulty: "Easy",
				Body:       "Implement inorder traversal of a binary tree.\n\nExample:\nInput: [1,null,2,3]\nOutput: [1,3,2]",
				Order:      1,
			},
			{
				ID:         uuid.New(),
				Title:      "Find the Kth Largest Element",
				Difficulty: "Medium",
				Body:       "Given an array, find the Kth largest element in it.\n\nExample:\nInput: [3,2,1,5,6,4], K = 2\nOutput: 5",
				Order:      2,
			},
		},
		registrations: map[uuid.UUID]*model.Registration{
			studentID: {
				ID:        uuid.New(),
				ExamID:    examID,
				StudentID: studentID,
				Status:    model.RegistrationStatusRegistered,
			},
		},
		submissions: map[uuid.UUID]model.SubmissionRecord{},
	}
	return s, nil
}

func (s *State) findUser(username string) (user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	return u, ok
}

func (s *State) examByID(id uuid.UUID) (model.Exam, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exam.ID != id {
		return model.Exam{}, false
	}
	return s.exam, true
}

func (s *State) questionsForExam(id uuid.UUID) ([]model.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exam.ID != id {
		return nil, false
	}
	out := make([]model.Question, len(s.questions))
	copy(out, s.questions)
	return out, true
}

func (s *State) registrationFor(examID, studentID uuid.UUID) (model.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[studentID]
	if !ok || reg.ExamID != examID {
		return model.Registration{}, false
	}
	return *reg, true
}

func (s *State) updateRegistration(id uuid.UUID, status model.RegistrationStatus) (model.Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.registrations {
		if reg.ID == id {
			reg.Status = status
			return *reg, true
		}
	}
	return model.Registration{}, false
}

func (s *State) createSubmission(req *model.CreateSubmissionRequest) model.SubmissionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := model.SubmissionRecord{
		ID:              uuid.New(),
		ExamID:          req.ExamID,
		QuestionID:      req.QuestionID,
		RegistrationID:  req.RegistrationID,
		Language:        req.Language,
		Status:          req.Status,
		AttemptNumber:   req.AttemptNumber,
		ClientTimestamp: req.ClientTimestamp,
		CreatedAt:       time.Now().UTC(),
	}
	s.submissions[rec.ID] = rec
	return rec
}
