// Package session is the exam session controller: it owns exam time,
// the persisted snapshot, per-answer lifecycle and exactly-once
// finalization. All snapshot mutation funnels through one mutex; the
// clock, the autosave timers and user actions are the only writers.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/api"
	"github.com/proctoraegis/examclient/internal/autosave"
	"github.com/proctoraegis/examclient/internal/clock"
	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/deadline"
	"github.com/proctoraegis/examclient/internal/model"
	"github.com/proctoraegis/examclient/internal/store"
)

// Controller errors.
var (
	ErrNotInProgress    = errors.New("session is not in progress")
	ErrAlreadySubmitted = errors.New("answer already submitted for this question")
	ErrEmptyAnswer      = errors.New("answer is empty")
	ErrInvalidLanguage  = errors.New("unknown answer language")
)

// Teardown is the external session teardown (token invalidation and
// redirect) invoked after the finalization grace delay.
type Teardown func()

// Controller coordinates one exam attempt end to end.
type Controller struct {
	cfg      *config.Config
	api      *api.Client
	sessions *store.SessionStore
	resolver *deadline.Resolver
	clk      clock.Clock
	teardown Teardown
	log      zerolog.Logger

	mu           sync.Mutex
	state        model.SessionLifecycleState
	exam         *model.Exam
	questions    []model.Question
	registration *model.Registration
	snap         *model.SessionSnapshot

	sched  *autosave.Scheduler
	sclock *clock.SessionClock

	// One-shot latch: the only first-writer-wins semantics in the
	// controller. Checked before any finalization side effect.
	finalizing atomic.Bool

	events    chan Event
	watchStop chan struct{}
	closeOnce sync.Once
}

// NewController wires a controller for one exam. Call Load before
// anything else.
func NewController(cfg *config.Config, apiClient *api.Client, sessions *store.SessionStore, clk clock.Clock, teardown Teardown, log zerolog.Logger) *Controller {
	if teardown == nil {
		teardown = func() {}
	}
	return &Controller{
		cfg:      cfg,
		api:      apiClient,
		sessions: sessions,
		resolver: deadline.NewResolver(cfg.FallbackDuration, log),
		clk:      clk,
		teardown: teardown,
		log:      log.With().Str("component", "session_controller").Logger(),
		state:    model.SessionLoading,
		events:   make(chan Event, 16),
		watchStop: make(chan struct{}),
	}
}

// Events streams ticks, state changes and autosave statuses to the UI.
func (c *Controller) Events() <-chan Event { return c.events }

// State returns the current lifecycle state.
func (c *Controller) State() model.SessionLifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load fetches the exam, its ordered questions and the student's
// registration, restores or creates the snapshot, resolves the deadline
// and starts the timers. A fetch failure leaves the session Errored
// with no timers running; calling Load again is the retry action.
func (c *Controller) Load(ctx context.Context, examID uuid.UUID) error {
	c.mu.Lock()
	if c.state != model.SessionLoading && c.state != model.SessionErrored {
		c.mu.Unlock()
		return fmt.Errorf("load from state %s", c.state)
	}
	c.setStateLocked(model.SessionLoading)
	c.mu.Unlock()

	exam, err := c.api.GetExam(ctx, examID)
	if err != nil {
		return c.failLoad(fmt.Errorf("fetch exam: %w", err))
	}
	questions, err := c.api.GetQuestions(ctx, examID)
	if err != nil {
		return c.failLoad(fmt.Errorf("fetch questions: %w", err))
	}
	if len(questions) == 0 {
		return c.failLoad(errors.New("exam has no questions"))
	}
	registration, err := c.api.ResolveRegistration(ctx, examID)
	if err != nil {
		return c.failLoad(fmt.Errorf("resolve registration: %w", err))
	}

	c.mu.Lock()
	c.exam = exam
	c.questions = questions
	c.registration = registration

	snap, restored := c.sessions.Load(examID.String())
	if restored {
		// A stale snapshot may point past the freshly fetched question
		// count; clamp instead of failing the resume.
		if snap.CurrentQuestionIndex >= len(questions) {
			snap.CurrentQuestionIndex = len(questions) - 1
		}
		if snap.CurrentQuestionIndex < 0 {
			snap.CurrentQuestionIndex = 0
		}
		c.log.Info().
			Str("session_id", snap.SessionID).
			Int("question_index", snap.CurrentQuestionIndex).
			Msg("Session restored")
	} else {
		snap = model.NewSessionSnapshot(uuid.New().String(), model.DefaultLanguage)
		c.log.Info().Str("session_id", snap.SessionID).Msg("Session created")
	}
	c.snap = snap

	window := c.resolver.Resolve(exam, snap, c.clk.Now())
	if snap.DeadlineWindow == nil {
		snap.DeadlineWindow = &window
	}

	if snap.ActiveDraft.Content == "" {
		c.loadDraftLocked()
	}
	c.persistLocked()

	c.sched = autosave.NewScheduler(
		c.cfg.AutosaveDebounce,
		c.cfg.AutosaveSweep,
		c.cfg.FlushTimeout,
		c.commitDraft,
		func(st autosave.Status) { c.emit(Event{Kind: EventAutosave, Autosave: st}) },
		c.log,
	)
	c.sched.Start()

	c.sclock = clock.NewSessionClock(c.clk, c.log)
	c.setStateLocked(model.SessionInProgress)
	c.mu.Unlock()

	go c.watch()
	c.sclock.Start(window)

	// Mark the attempt started on the server. Best-effort: a miss here
	// never blocks entering the exam.
	if registration.Status != model.RegistrationStatusInProgress {
		if err := c.api.UpdateRegistrationStatus(ctx, registration.ID, model.RegistrationStatusInProgress); err != nil {
			c.log.Warn().Err(err).Msg("Registration status update failed")
		}
	}

	return nil
}

// OnEdit records an editor change for the active question. Edits to a
// submitted question are dropped: submitted content is immutable.
func (c *Controller) OnEdit(content string) {
	c.mu.Lock()
	if c.state != model.SessionInProgress || c.snap.IsSubmitted(c.currentQuestionLocked().ID.String()) {
		c.mu.Unlock()
		return
	}
	c.snap.ActiveDraft.Content = content
	sched := c.sched
	c.mu.Unlock()

	sched.OnEdit()
}

// SetLanguage switches the answer language for the active question. A
// question with no saved draft gets the new language's starter code.
func (c *Controller) SetLanguage(lang string) error {
	if !model.ValidLanguage(lang) {
		return ErrInvalidLanguage
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.SessionInProgress {
		return ErrNotInProgress
	}
	qid := c.currentQuestionLocked().ID.String()
	if c.snap.IsSubmitted(qid) {
		return ErrAlreadySubmitted
	}

	c.snap.ActiveDraft.Language = lang
	if _, saved := c.snap.SavedAnswers[qid]; !saved {
		c.snap.ActiveDraft.Content = model.StarterCode(lang)
	}
	c.persistLocked()
	return nil
}

// Navigate flushes any pending draft, then moves to the question at
// index to (clamped) and loads its draft. The flush blocks until it
// settles or the flush timeout elapses; navigation proceeds either way.
func (c *Controller) Navigate(ctx context.Context, to int) error {
	c.mu.Lock()
	if c.state != model.SessionInProgress {
		c.mu.Unlock()
		return ErrNotInProgress
	}
	sched := c.sched
	c.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()
	if err := sched.Flush(flushCtx); err != nil {
		c.log.Warn().Err(err).Msg("Flush before navigation failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != model.SessionInProgress {
		return ErrNotInProgress
	}
	if to < 0 {
		to = 0
	}
	if to >= len(c.questions) {
		to = len(c.questions) - 1
	}
	c.snap.CurrentQuestionIndex = to
	c.loadDraftLocked()
	c.persistLocked()
	return nil
}

// Close cancels all timers and stops event delivery without touching
// persisted storage. Leaving the exam is not submitting it; only a
// confirmed finalization clears the store.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.watchStop)
		c.mu.Lock()
		sched, sclock := c.sched, c.sclock
		c.mu.Unlock()
		if sclock != nil {
			sclock.Stop()
		}
		if sched != nil {
			sched.Stop()
		}
	})
}

// ─── Snapshot accessors for the UI ─────────────────────────────────────

// Exam returns the loaded exam metadata.
func (c *Controller) Exam() *model.Exam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exam
}

// Questions returns the ordered question list.
func (c *Controller) Questions() []model.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.questions
}

// Current returns the active question, its index, the visible draft and
// its derived answer state.
func (c *Controller) Current() (model.Question, int, model.ActiveDraft, model.AnswerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q := c.currentQuestionLocked()
	return q, c.snap.CurrentQuestionIndex, c.snap.ActiveDraft, c.snap.AnswerStateOf(q.ID.String())
}

// SubmittedCount returns how many questions are terminally submitted.
func (c *Controller) SubmittedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snap.SubmittedAnswers)
}

// ─── Internals ─────────────────────────────────────────────────────────

// commitDraft is the autosave commit callback: it moves the active
// draft into savedAnswers and persists the snapshot. A submitted active
// question makes it a no-op.
func (c *Controller) commitDraft(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil
	}
	qid := c.currentQuestionLocked().ID.String()
	if c.snap.IsSubmitted(qid) {
		return nil
	}
	c.snap.SavedAnswers[qid] = c.snap.ActiveDraft.Content
	return c.persistLocked()
}

// loadDraftLocked fills the active draft for the current question:
// submitted content (read-only view), else the saved draft, else the
// language's starter template.
func (c *Controller) loadDraftLocked() {
	qid := c.currentQuestionLocked().ID.String()
	if content, ok := c.snap.SubmittedAnswers[qid]; ok {
		c.snap.ActiveDraft.Content = content
		return
	}
	if content, ok := c.snap.SavedAnswers[qid]; ok {
		c.snap.ActiveDraft.Content = content
		return
	}
	c.snap.ActiveDraft.Content = model.StarterCode(c.snap.ActiveDraft.Language)
}

func (c *Controller) currentQuestionLocked() model.Question {
	return c.questions[c.snap.CurrentQuestionIndex]
}

// persistLocked writes the whole snapshot. Persistence failures degrade
// to in-memory-only operation; they never block navigation or submit.
func (c *Controller) persistLocked() error {
	err := c.sessions.Save(c.exam.ID.String(), c.snap, c.clk.Now().UnixMilli())
	if err != nil {
		c.log.Warn().Err(err).Msg("Snapshot persist failed, continuing in memory")
	}
	return err
}

func (c *Controller) failLoad(err error) error {
	c.mu.Lock()
	c.setStateLocked(model.SessionErrored)
	c.mu.Unlock()
	c.log.Error().Err(err).Msg("Session load failed")
	return err
}

func (c *Controller) setStateLocked(state model.SessionLifecycleState) {
	c.state = state
	c.emit(Event{Kind: EventState, State: state})
}

// watch forwards clock ticks to the event stream and turns the expiry
// signal into the finalization trigger.
func (c *Controller) watch() {
	for {
		select {
		case <-c.watchStop:
			return
		case remaining := <-c.sclock.Ticks():
			c.emit(Event{Kind: EventTick, Remaining: remaining})
		case <-c.sclock.Expired():
			c.Finalize(context.Background(), ReasonDeadlineExpired)
			return
		}
	}
}

// emit never blocks; a slow consumer drops the oldest event.
func (c *Controller) emit(ev Event) {
	for {
		select {
		case c.events <- ev:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}
