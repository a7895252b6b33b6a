// Package api is the HTTP client for the remote exam service. It is the
// only component that talks to the network besides the auth login call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/model"
)

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	AccessToken() string
}

// Error is a failed exam-service call. The message is the one the
// service returned, so submit failures can surface the specific reason.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("exam service: %s (%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("exam service: status %d", e.StatusCode)
}

// Client calls the remote exam service over HTTP/JSON with bearer-token
// authentication.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     zerolog.Logger
}

// NewClient creates a client. tokens may be nil for unauthenticated
// calls (login).
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		log:     log.With().Str("component", "api_client").Logger(),
	}
}

// envelope mirrors the service's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	StudentID   uuid.UUID `json:"student_id"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	body := map[string]string{"username": username, "password": password}
	var out LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetExam fetches the exam metadata: title, duration, optional
// start/end instants.
func (c *Client) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	var exam model.Exam
	if err := c.do(ctx, http.MethodGet, "/exams/"+examID.String(), nil, &exam); err != nil {
		return nil, err
	}
	return &exam, nil
}

// GetQuestions fetches the exam's question list, ordered by the fixed
// per-question order.
func (c *Client) GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	var questions []model.Question
	if err := c.do(ctx, http.MethodGet, "/exams/"+examID.String()+"/questions", nil, &questions); err != nil {
		return nil, err
	}
	model.SortQuestions(questions)
	return questions, nil
}

// ResolveRegistration returns the authenticated student's registration
// for the exam.
func (c *Client) ResolveRegistration(ctx context.Context, examID uuid.UUID) (*model.Registration, error) {
	var reg model.Registration
	if err := c.do(ctx, http.MethodGet, "/exams/"+examID.String()+"/registration", nil, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// CreateSubmission submits one answer and returns the created record.
// The caller owns retries; this client never retries on its own.
func (c *Client) CreateSubmission(ctx context.Context, req *model.CreateSubmissionRequest) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	if err := c.do(ctx, http.MethodPost, "/submissions", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// UpdateRegistrationStatus updates the registration's status. Callers
// treat failures as best-effort.
func (c *Client) UpdateRegistrationStatus(ctx context.Context, registrationID uuid.UUID, status model.RegistrationStatus) error {
	req := model.UpdateRegistrationRequest{Status: status}
	return c.do(ctx, http.MethodPut, "/exam-registrations/"+registrationID.String(), req, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 || env.Error != nil {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}
