package session

import (
	"context"
	"strings"

	"github.com/proctoraegis/examclient/internal/model"
)

// SubmitAnswer submits the active question's draft. On success the
// question moves to Submitted and becomes immutable; on remote failure
// nothing changes and the caller decides whether to retry. Submissions
// are independent across questions: partial completion is a valid,
// persisted state.
func (c *Controller) SubmitAnswer(ctx context.Context) (*model.SubmissionRecord, error) {
	c.mu.Lock()
	if c.state != model.SessionInProgress {
		c.mu.Unlock()
		return nil, ErrNotInProgress
	}

	question := c.currentQuestionLocked()
	qid := question.ID.String()
	if c.snap.IsSubmitted(qid) {
		c.mu.Unlock()
		return nil, ErrAlreadySubmitted
	}

	content := c.snap.ActiveDraft.Content
	if strings.TrimSpace(content) == "" {
		c.mu.Unlock()
		return nil, ErrEmptyAnswer
	}

	attempt := c.snap.AttemptNumbers[qid] + 1
	req := &model.CreateSubmissionRequest{
		Source:          content,
		Language:        c.snap.ActiveDraft.Language,
		Status:          model.SubmissionStatusPending,
		AttemptNumber:   attempt,
		ExamID:          c.exam.ID,
		QuestionID:      question.ID,
		RegistrationID:  c.registration.ID,
		ClientTimestamp: c.clk.Now(),
	}
	c.mu.Unlock()

	// The remote call runs outside the lock: the clock may expire while
	// it is in flight, and finalization must not wait on it.
	record, err := c.api.CreateSubmission(ctx, req)
	if err != nil {
		c.log.Warn().Err(err).Str("question_id", qid).Msg("Submission failed")
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snap.AttemptNumbers[qid] = attempt
	c.snap.SubmittedAnswers[qid] = content
	// A submitted answer is also considered saved.
	c.snap.SavedAnswers[qid] = content

	if c.state == model.SessionInProgress {
		c.persistLocked()
	} else {
		// Lost the expiry race: the session finalized while the call
		// was in flight. The server accepted the answer; record it in
		// memory only, the store entry is already cleared.
		c.log.Warn().Str("question_id", qid).Msg("Submission landed after finalization")
	}

	c.log.Info().
		Str("question_id", qid).
		Int("attempt", attempt).
		Msg("Answer submitted")
	return record, nil
}
