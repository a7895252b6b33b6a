package mockexam

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/proctoraegis/examclient/internal/model"
	"github.com/proctoraegis/examclient/internal/response"
	"github.com/proctoraegis/examclient/internal/validator"
)

// loginRequest is the login payload.
type loginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=64"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// Login godoc
// POST /auth/login
// Exchanges credentials for a bearer token.
func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	u, ok := s.state.findUser(req.Username)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	token, err := issueToken(s.cfg, u.StudentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"access_token": token,
		"student_id":   u.StudentID,
	})
}

// GetExam godoc
// GET /exams/:exam_id
func (s *Server) GetExam(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	exam, ok := s.state.examByID(examID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// GetQuestions godoc
// GET /exams/:exam_id/questions
func (s *Server) GetQuestions(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	questions, ok := s.state.questionsForExam(examID)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, questions)
}

// GetRegistration godoc
// GET /exams/:exam_id/registration
// Resolves the authenticated student's registration for the exam.
func (s *Server) GetRegistration(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	reg, ok := s.state.registrationFor(examID, studentID(c))
	if !ok {
		response.Fail(c, http.StatusForbidden, response.ErrNotRegistered)
		return
	}
	response.Success(c, http.StatusOK, reg)
}

// UpdateRegistration godoc
// PUT /exam-registrations/:registration_id
func (s *Server) UpdateRegistration(c *gin.Context) {
	registrationID, err := uuid.Parse(c.Param("registration_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.UpdateRegistrationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reg, ok := s.state.updateRegistration(registrationID, req.Status)
	if !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, reg)
}

// CreateSubmission godoc
// POST /submissions
// Records an answer submission as pending; grading is not this
// service's concern.
func (s *Server) CreateSubmission(c *gin.Context) {
	var req model.CreateSubmissionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if _, ok := s.state.examByID(req.ExamID); !ok {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	rec := s.state.createSubmission(&req)
	s.log.Info().
		Str("question_id", req.QuestionID.String()).
		Int("attempt", req.AttemptNumber).
		Msg("Submission recorded")
	response.Success(c, http.StatusCreated, rec)
}
