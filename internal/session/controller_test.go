package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctoraegis/examclient/internal/api"
	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/model"
	"github.com/proctoraegis/examclient/internal/store"
)

type staticTokens struct{}

func (staticTokens) AccessToken() string { return "test-token" }

// fakeExamService is an in-memory stand-in for the remote service,
// serving the envelope-wrapped endpoints the controller calls.
type fakeExamService struct {
	mu sync.Mutex

	examID         uuid.UUID
	registrationID uuid.UUID
	questionIDs    []uuid.UUID
	startTime      *time.Time
	endTime        *time.Time
	duration       int

	submissions     []map[string]any
	statusUpdates   []string
	failSubmissions bool
	failExamFetch   bool

	// When set, the submissions handler signals arrival on
	// submissionEntered and blocks until submissionRelease closes.
	submissionEntered chan struct{}
	submissionRelease chan struct{}
}

func newFakeExamService() *fakeExamService {
	return &fakeExamService{
		examID:         uuid.New(),
		registrationID: uuid.New(),
		questionIDs:    []uuid.UUID{uuid.New(), uuid.New(), uuid.New()},
		duration:       10, // minutes
	}
}

func (f *fakeExamService) handler() http.Handler {
	mux := http.NewServeMux()
	wrap := func(w http.ResponseWriter, status int, data any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}

	mux.HandleFunc("/exams/"+f.examID.String(), func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failExamFetch
		f.mu.Unlock()
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"data":  nil,
				"error": map[string]string{"code": "INTERNAL_ERROR", "message": "temporary outage"},
			})
			return
		}
		wrap(w, http.StatusOK, map[string]any{
			"id":               f.examID,
			"title":            "Algorithms Final",
			"duration_minutes": f.duration,
			"start_time":       f.startTime,
			"end_time":         f.endTime,
		})
	})

	mux.HandleFunc("/exams/"+f.examID.String()+"/questions", func(w http.ResponseWriter, r *http.Request) {
		questions := make([]map[string]any, len(f.questionIDs))
		for i, id := range f.questionIDs {
			questions[i] = map[string]any{
				"id": id, "title": "Q", "difficulty": "medium",
				"body": "Solve it.", "order": i + 1,
			}
		}
		wrap(w, http.StatusOK, questions)
	})

	mux.HandleFunc("/exams/"+f.examID.String()+"/registration", func(w http.ResponseWriter, r *http.Request) {
		wrap(w, http.StatusOK, map[string]any{
			"id": f.registrationID, "exam_id": f.examID,
			"student_id": uuid.New(), "status": "registered",
		})
	})

	mux.HandleFunc("/submissions", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		entered, release := f.submissionEntered, f.submissionRelease
		f.mu.Unlock()
		if entered != nil {
			entered <- struct{}{}
			<-release
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failSubmissions {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"data":  nil,
				"error": map[string]string{"code": "INTERNAL_ERROR", "message": "submissions are down"},
			})
			return
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.submissions = append(f.submissions, body)
		wrap(w, http.StatusCreated, map[string]any{
			"id": uuid.New(), "exam_id": f.examID,
			"question_id": body["question_id"], "registration_id": f.registrationID,
			"language": body["language"], "status": "pending",
			"attempt_number": body["attempt_number"],
		})
	})

	mux.HandleFunc("/exam-registrations/"+f.registrationID.String(), func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.statusUpdates = append(f.statusUpdates, body["status"])
		f.mu.Unlock()
		wrap(w, http.StatusOK, nil)
	})

	return mux
}

func (f *fakeExamService) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

func (f *fakeExamService) lastStatusUpdate() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusUpdates) == 0 {
		return ""
	}
	return f.statusUpdates[len(f.statusUpdates)-1]
}

// fakeClock is a settable clock shared by the controller and the test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

type fixture struct {
	svc        *fakeExamService
	kv         *store.MemoryStore
	controller *Controller
	cfg        *config.Config
	clk        *fakeClock
}

func newFixture(t *testing.T, svc *fakeExamService, kv *store.MemoryStore, teardown Teardown) *fixture {
	t.Helper()

	server := httptest.NewServer(svc.handler())
	t.Cleanup(server.Close)

	cfg := &config.Config{
		APIBaseURL:       server.URL,
		HTTPTimeout:      5 * time.Second,
		AutosaveDebounce: 20 * time.Millisecond,
		AutosaveSweep:    50 * time.Millisecond,
		FlushTimeout:     time.Second,
		FinalizeGrace:    10 * time.Millisecond,
		FallbackDuration: 90 * time.Minute,
	}

	clk := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	client := api.NewClient(server.URL, cfg.HTTPTimeout, staticTokens{}, zerolog.Nop())
	controller := NewController(
		cfg,
		client,
		store.NewSessionStore(kv, zerolog.Nop()),
		clk,
		teardown,
		zerolog.Nop(),
	)
	t.Cleanup(controller.Close)

	return &fixture{svc: svc, kv: kv, controller: controller, cfg: cfg, clk: clk}
}

func mustLoad(t *testing.T, f *fixture) {
	t.Helper()
	require.NoError(t, f.controller.Load(context.Background(), f.svc.examID))
	require.Equal(t, model.SessionInProgress, f.controller.State())
}

func TestLoadCreatesFreshSession(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	assert.Equal(t, "Algorithms Final", f.controller.Exam().Title)
	require.Len(t, f.controller.Questions(), 3)

	q, idx, draft, state := f.controller.Current()
	assert.Equal(t, f.svc.questionIDs[0], q.ID)
	assert.Zero(t, idx)
	assert.Equal(t, model.DefaultLanguage, draft.Language)
	assert.Equal(t, model.StarterCode(model.DefaultLanguage), draft.Content)
	assert.Equal(t, model.AnswerDraft, state)

	// Entering the exam flips the server-side registration.
	assert.Eventually(t, func() bool {
		return f.svc.lastStatusUpdate() == "in_progress"
	}, time.Second, 10*time.Millisecond)
}

func TestLoadFailureIsRetryable(t *testing.T) {
	svc := newFakeExamService()
	svc.failExamFetch = true
	f := newFixture(t, svc, store.NewMemoryStore(), nil)

	err := f.controller.Load(context.Background(), svc.examID)
	require.Error(t, err)
	assert.Equal(t, model.SessionErrored, f.controller.State())

	svc.mu.Lock()
	svc.failExamFetch = false
	svc.mu.Unlock()

	require.NoError(t, f.controller.Load(context.Background(), svc.examID))
	assert.Equal(t, model.SessionInProgress, f.controller.State())
}

func TestReloadRestoresSnapshotAndDeadline(t *testing.T) {
	svc := newFakeExamService()
	kv := store.NewMemoryStore()

	f1 := newFixture(t, svc, kv, nil)
	mustLoad(t, f1)

	f1.controller.OnEdit("partial solution")
	require.NoError(t, f1.controller.Navigate(context.Background(), 1))
	f1.controller.OnEdit("second question work")
	_, err := f1.controller.SubmitAnswer(context.Background())
	require.NoError(t, err)
	f1.controller.Close()

	firstSnap, ok := store.NewSessionStore(kv, zerolog.Nop()).Load(svc.examID.String())
	require.True(t, ok)
	firstWindow := *firstSnap.DeadlineWindow

	// Same backing store, fresh process.
	f2 := newFixture(t, svc, kv, nil)
	mustLoad(t, f2)

	q, idx, draft, state := f2.controller.Current()
	assert.Equal(t, 1, idx)
	assert.Equal(t, svc.questionIDs[1], q.ID)
	assert.Equal(t, "second question work", draft.Content)
	assert.Equal(t, model.AnswerSubmitted, state)
	assert.Equal(t, 1, f2.controller.SubmittedCount())

	// The countdown window survives the reload untouched.
	restored, ok := store.NewSessionStore(kv, zerolog.Nop()).Load(svc.examID.String())
	require.True(t, ok)
	assert.Equal(t, firstWindow, *restored.DeadlineWindow)

	// The first question's draft survived too.
	require.NoError(t, f2.controller.Navigate(context.Background(), 0))
	_, _, draft, _ = f2.controller.Current()
	assert.Equal(t, "partial solution", draft.Content)
}

func TestReloadClampsStaleQuestionIndex(t *testing.T) {
	svc := newFakeExamService()
	kv := store.NewMemoryStore()

	sessions := store.NewSessionStore(kv, zerolog.Nop())
	snap := model.NewSessionSnapshot("stale", model.DefaultLanguage)
	snap.CurrentQuestionIndex = 99
	require.NoError(t, sessions.Save(svc.examID.String(), snap, 0))

	f := newFixture(t, svc, kv, nil)
	mustLoad(t, f)

	_, idx, _, _ := f.controller.Current()
	assert.Equal(t, 2, idx)
}

func TestNavigationFlushesAndClamps(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("work in progress")
	require.NoError(t, f.controller.Navigate(context.Background(), 2))

	_, idx, _, _ := f.controller.Current()
	assert.Equal(t, 2, idx)

	// The draft for question one was committed before leaving it.
	snap, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	require.True(t, ok)
	assert.Equal(t, "work in progress", snap.SavedAnswers[f.svc.questionIDs[0].String()])

	// Out-of-range targets clamp instead of failing.
	require.NoError(t, f.controller.Navigate(context.Background(), 99))
	_, idx, _, _ = f.controller.Current()
	assert.Equal(t, 2, idx)

	require.NoError(t, f.controller.Navigate(context.Background(), -5))
	_, idx, _, _ = f.controller.Current()
	assert.Zero(t, idx)
}

func TestSubmitAnswerLifecycle(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("final answer")
	rec, err := f.controller.SubmitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AttemptNumber)
	assert.Equal(t, 1, f.controller.SubmittedCount())

	_, _, _, state := f.controller.Current()
	assert.Equal(t, model.AnswerSubmitted, state)

	// Submitted is terminal: no resubmit, no edits, no language switch.
	_, err = f.controller.SubmitAnswer(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, f.controller.SetLanguage("python"), ErrAlreadySubmitted)

	f.controller.OnEdit("attempted tamper")
	_, _, draft, _ := f.controller.Current()
	assert.Equal(t, "final answer", draft.Content)
}

func TestSubmitAnswerRejectsBlankContent(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("   \n\t  ")
	_, err := f.controller.SubmitAnswer(context.Background())
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Zero(t, f.svc.submissionCount())
}

func TestSubmitAnswerRemoteFailureKeepsDraftState(t *testing.T) {
	svc := newFakeExamService()
	svc.failSubmissions = true
	f := newFixture(t, svc, store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("my answer")
	_, err := f.controller.SubmitAnswer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "submissions are down")

	// Nothing moved to submitted; the retry works once the service is back.
	assert.Zero(t, f.controller.SubmittedCount())
	_, _, _, state := f.controller.Current()
	assert.NotEqual(t, model.AnswerSubmitted, state)

	svc.mu.Lock()
	svc.failSubmissions = false
	svc.mu.Unlock()

	rec, err := f.controller.SubmitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AttemptNumber)
}

func TestSetLanguageResetsUnsavedDraftToStarter(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	require.NoError(t, f.controller.SetLanguage("python"))
	_, _, draft, _ := f.controller.Current()
	assert.Equal(t, "python", draft.Language)
	assert.Equal(t, model.StarterCode("python"), draft.Content)

	assert.ErrorIs(t, f.controller.SetLanguage("cobol"), ErrInvalidLanguage)
}

func TestFinalizeRunsExactlyOnce(t *testing.T) {
	teardowns := 0
	done := make(chan struct{})
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), func() {
		teardowns++
		close(done)
	})
	mustLoad(t, f)

	f.controller.OnEdit("almost done")

	first := f.controller.Finalize(context.Background(), ReasonStudentSubmit)
	second := f.controller.Finalize(context.Background(), ReasonDeadlineExpired)

	assert.True(t, first)
	assert.False(t, second, "the second trigger observes the latch")
	assert.Equal(t, model.SessionCompleted, f.controller.State())

	// The persisted snapshot is gone.
	_, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	assert.False(t, ok)

	// The registration was marked completed.
	assert.Equal(t, "completed", f.svc.lastStatusUpdate())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("teardown never ran")
	}
	assert.Equal(t, 1, teardowns)
}

func TestSubmissionLandingAfterFinalizationStaysInMemoryOnly(t *testing.T) {
	svc := newFakeExamService()
	svc.submissionEntered = make(chan struct{}, 1)
	svc.submissionRelease = make(chan struct{})

	f := newFixture(t, svc, store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("answer caught by the bell")

	type result struct {
		rec *model.SubmissionRecord
		err error
	}
	submitted := make(chan result, 1)
	go func() {
		rec, err := f.controller.SubmitAnswer(context.Background())
		submitted <- result{rec, err}
	}()
	<-svc.submissionEntered

	// The deadline lands while the submission call is still on the
	// wire. Finalization must complete without waiting for it.
	require.True(t, f.controller.Finalize(context.Background(), ReasonDeadlineExpired))
	assert.Equal(t, model.SessionCompleted, f.controller.State())
	_, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	assert.False(t, ok)

	close(svc.submissionRelease)

	res := <-submitted
	require.NoError(t, res.err)
	require.NotNil(t, res.rec)

	// The server accepted the answer; it is recorded in memory, but
	// the cleared store entry must not come back.
	assert.Equal(t, 1, f.controller.SubmittedCount())
	_, ok = store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	assert.False(t, ok, "a late submission must not resurrect the cleared snapshot")
}

func TestFinalizeBeforeLoadIsNoOp(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)

	// No Load has run: nothing to stop, nothing to clear.
	assert.False(t, f.controller.Finalize(context.Background(), ReasonStudentSubmit))
	assert.Equal(t, model.SessionLoading, f.controller.State())
}

func TestFinalizeAfterFailedLoadIsNoOp(t *testing.T) {
	svc := newFakeExamService()
	svc.failExamFetch = true
	f := newFixture(t, svc, store.NewMemoryStore(), nil)

	require.Error(t, f.controller.Load(context.Background(), svc.examID))
	assert.False(t, f.controller.Finalize(context.Background(), ReasonDeadlineExpired))
	assert.Equal(t, model.SessionErrored, f.controller.State())
}

func TestDeadlineExpiryTriggersFinalization(t *testing.T) {
	svc := newFakeExamService()
	// Server window ends thirty seconds after the test clock's start.
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	start := now.Add(-10 * time.Minute)
	end := now.Add(30 * time.Second)
	svc.startTime = &start
	svc.endTime = &end

	f := newFixture(t, svc, store.NewMemoryStore(), nil)
	mustLoad(t, f)

	// Jump the clock past the deadline; the next real ticker beat
	// recomputes the remaining time and fires expiry.
	f.clk.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return f.controller.State() == model.SessionCompleted
	}, 5*time.Second, 20*time.Millisecond)

	_, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	assert.False(t, ok)
}

func TestResumePastDeadlineFinalizesImmediately(t *testing.T) {
	svc := newFakeExamService()
	kv := store.NewMemoryStore()

	// A snapshot whose window already ended, as after closing the lid
	// overnight.
	sessions := store.NewSessionStore(kv, zerolog.Nop())
	snap := model.NewSessionSnapshot("expired", model.DefaultLanguage)
	expired := model.DeadlineWindow{StartMS: 1_700_000_000_000, EndMS: 1_700_000_000_001}
	snap.DeadlineWindow = &expired
	require.NoError(t, sessions.Save(svc.examID.String(), snap, 0))

	f := newFixture(t, svc, kv, nil)
	require.NoError(t, f.controller.Load(context.Background(), svc.examID))

	require.Eventually(t, func() bool {
		return f.controller.State() == model.SessionCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestAutosaveCommitsDraftToStore(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("let x = 1")

	require.Eventually(t, func() bool {
		snap, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
		if !ok {
			return false
		}
		return snap.SavedAnswers[f.svc.questionIDs[0].String()] == "let x = 1"
	}, time.Second, 10*time.Millisecond)
}

func TestCloseKeepsSnapshot(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	f.controller.OnEdit("do not lose me")
	require.NoError(t, f.controller.Navigate(context.Background(), 1))
	f.controller.Close()

	// Leaving is not submitting: the snapshot must survive.
	snap, ok := store.NewSessionStore(f.kv, zerolog.Nop()).Load(f.svc.examID.String())
	require.True(t, ok)
	assert.Equal(t, "do not lose me", snap.SavedAnswers[f.svc.questionIDs[0].String()])
}

func TestAttemptNumbersSurviveReload(t *testing.T) {
	svc := newFakeExamService()
	kv := store.NewMemoryStore()

	f1 := newFixture(t, svc, kv, nil)
	mustLoad(t, f1)
	f1.controller.OnEdit("answer one")
	rec, err := f1.controller.SubmitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AttemptNumber)
	f1.controller.Close()

	f2 := newFixture(t, svc, kv, nil)
	mustLoad(t, f2)
	require.NoError(t, f2.controller.Navigate(context.Background(), 1))
	f2.controller.OnEdit("answer two")
	rec2, err := f2.controller.SubmitAnswer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec2.AttemptNumber, "attempts are counted per question")
}

func TestEventsCarryTicksAndStates(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	deadline := time.After(3 * time.Second)
	var sawTick bool
	for !sawTick {
		select {
		case ev := <-f.controller.Events():
			if ev.Kind == EventTick {
				assert.Positive(t, ev.Remaining)
				sawTick = true
			}
		case <-deadline:
			t.Fatal("no tick event observed")
		}
	}
}

func TestBlankEditDoesNotCountAsAnswer(t *testing.T) {
	f := newFixture(t, newFakeExamService(), store.NewMemoryStore(), nil)
	mustLoad(t, f)

	// Clearing the editor entirely is a valid draft but not a
	// submittable answer.
	f.controller.OnEdit("")
	_, err := f.controller.SubmitAnswer(context.Background())
	assert.ErrorIs(t, err, ErrEmptyAnswer)
}
