package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCommit records commits and optionally fails the first n.
type countingCommit struct {
	mu       sync.Mutex
	calls    int
	failNext int
}

func (c *countingCommit) commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failNext > 0 {
		c.failNext--
		return errors.New("storage unavailable")
	}
	return nil
}

func (c *countingCommit) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSchedulerDebounceCommitsAfterQuietPeriod(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(20*time.Millisecond, time.Hour, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.OnEdit()
	s.OnEdit()
	s.OnEdit()

	require.Eventually(t, func() bool { return cc.count() == 1 },
		time.Second, 5*time.Millisecond,
		"a burst of edits inside one debounce window commits once")
}

func TestSchedulerSweepBoundsLossUnderContinuousEdits(t *testing.T) {
	cc := &countingCommit{}
	// Edits arrive faster than the debounce window, so the debounce
	// timer never fires; the sweep still has to commit.
	s := NewScheduler(50*time.Millisecond, 30*time.Millisecond, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.OnEdit()
			time.Sleep(10 * time.Millisecond)
		}
	}()
	<-done

	require.Eventually(t, func() bool { return cc.count() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestSchedulerFailedCommitRetriesOnSweep(t *testing.T) {
	cc := &countingCommit{failNext: 1}
	s := NewScheduler(10*time.Millisecond, 30*time.Millisecond, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.OnEdit()

	// First attempt fails; dirty stays set and the sweep retries with
	// no new edit in between.
	require.Eventually(t, func() bool { return cc.count() >= 2 },
		time.Second, 5*time.Millisecond)
}

func TestSchedulerCleanSessionNeverCommits(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(10*time.Millisecond, 15*time.Millisecond, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, cc.count())
}

func TestSchedulerFlushCommitsImmediately(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(time.Hour, time.Hour, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.OnEdit()
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, cc.count())

	// Nothing dirty: flush is a no-op.
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, cc.count())
}

func TestSchedulerFlushWorksAfterStop(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(time.Hour, time.Hour, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()

	s.OnEdit()
	s.Stop()

	// Finalization stops the timers first, then flushes the last draft.
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, cc.count())
}

func TestSchedulerEditDuringCommitKeepsDirty(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	commit := func(context.Context) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	}

	s := NewScheduler(time.Hour, time.Hour, time.Second, commit, nil, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.OnEdit()
	go s.Flush(context.Background())
	<-entered

	// A keystroke lands while the first commit is in flight.
	s.OnEdit()
	close(release)

	// The in-flight commit must not clear dirtiness for content it
	// never saw; a second flush commits the newer draft.
	require.Eventually(t, func() bool {
		if err := s.Flush(context.Background()); err != nil {
			return false
		}
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestSchedulerStatusCallbacks(t *testing.T) {
	var mu sync.Mutex
	var seen []Status
	cc := &countingCommit{}
	s := NewScheduler(time.Hour, time.Hour, time.Second, cc.commit, func(st Status) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	}, zerolog.Nop())
	s.Start()
	defer s.Stop()

	s.OnEdit()
	require.NoError(t, s.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusSaving, StatusSaved}, seen)
}

func TestSchedulerStopWaitsForInFlightDebounceCommit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	commit := func(context.Context) error {
		close(entered)
		<-release
		return nil
	}

	s := NewScheduler(5*time.Millisecond, time.Hour, time.Second, commit, nil, zerolog.Nop())
	s.Start()

	s.OnEdit()
	<-entered

	// The debounce commit is mid-flight. Stop must not return until it
	// lands; otherwise a teardown sequence that clears storage right
	// after Stop would be overtaken by this commit's persist.
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a commit was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned after the commit finished")
	}
}

func TestSchedulerStopReleasesUnfiredDebounceTimer(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(time.Hour, time.Hour, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()

	s.OnEdit()

	// The debounce timer is armed but far from firing; Stop must cancel
	// it and return rather than wait on a callback that will never run.
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop hung on a cancelled debounce timer")
	}
	assert.Zero(t, cc.count())
}

func TestSchedulerOnEditAfterStopIsIgnored(t *testing.T) {
	cc := &countingCommit{}
	s := NewScheduler(5*time.Millisecond, time.Hour, time.Second, cc.commit, nil, zerolog.Nop())
	s.Start()
	s.Stop()

	s.OnEdit()
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, cc.count())
}
