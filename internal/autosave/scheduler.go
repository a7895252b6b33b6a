// Package autosave owns the single place where the debounce-on-edit
// policy and the fixed-interval safety sweep interact. Everything else
// in the client only sees OnEdit and Flush.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the externally visible autosave state, surfaced so the UI
// can show a save indicator without owning any timer logic.
type Status string

const (
	StatusIdle   Status = "idle"
	StatusSaving Status = "saving"
	StatusSaved  Status = "saved"
	StatusError  Status = "error"
)

// CommitFunc persists the current draft. It must be a no-op when the
// active question is already submitted; the scheduler does not know
// about answer states, only about dirtiness.
type CommitFunc func(ctx context.Context) error

// Scheduler debounces edits into commits and independently sweeps on a
// fixed interval, bounding worst-case data loss even under continuous
// typing that keeps resetting the debounce timer.
type Scheduler struct {
	debounce     time.Duration
	sweep        time.Duration
	flushTimeout time.Duration
	commit       CommitFunc
	onStatus     func(Status)
	log          zerolog.Logger

	mu            sync.Mutex
	dirty         bool
	editGen       uint64
	debounceTimer *time.Timer
	stopped       bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. onStatus may be nil.
func NewScheduler(debounce, sweep, flushTimeout time.Duration, commit CommitFunc, onStatus func(Status), log zerolog.Logger) *Scheduler {
	if onStatus == nil {
		onStatus = func(Status) {}
	}
	return &Scheduler{
		debounce:     debounce,
		sweep:        sweep,
		flushTimeout: flushTimeout,
		commit:       commit,
		onStatus:     onStatus,
		log:          log.With().Str("component", "autosave").Logger(),
		stop:         make(chan struct{}),
	}
}

// Start launches the sweep loop. Call once.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop cancels both timers and waits for any commit already in flight,
// so a caller that clears storage after Stop cannot be overtaken by a
// late persist. In-memory state is untouched; stopping is teardown, not
// a flush. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	s.stopped = true
	if s.debounceTimer != nil {
		// A pending timer that never fired still holds a WaitGroup
		// slot; release it. A false return means the callback is
		// already running and will release its own.
		if s.debounceTimer.Stop() {
			s.wg.Done()
		}
		s.debounceTimer = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// OnEdit marks the session dirty and restarts the debounce timer. Called
// on every editor change.
func (s *Scheduler) OnEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.dirty = true
	s.editGen++

	if s.debounceTimer != nil && s.debounceTimer.Stop() {
		s.wg.Done()
	}
	// The callback is tracked in the WaitGroup so Stop can wait out a
	// debounce commit that has already started firing.
	s.wg.Add(1)
	s.debounceTimer = time.AfterFunc(s.debounce, func() {
		defer s.wg.Done()
		s.commitIfDirty("debounce")
	})
}

// Flush forces an immediate commit of any dirty state, bounded by the
// configured flush timeout. Navigation and teardown block on it.
func (s *Scheduler) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	gen := s.editGen
	s.mu.Unlock()

	return s.doCommit(ctx, gen, "flush")
}

func (s *Scheduler) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.commitIfDirty("sweep")
		}
	}
}

func (s *Scheduler) commitIfDirty(trigger string) {
	s.mu.Lock()
	if s.stopped || !s.dirty {
		s.mu.Unlock()
		return
	}
	gen := s.editGen
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()

	if err := s.doCommit(ctx, gen, trigger); err != nil {
		// Draft stays in memory and dirty stays set; the next sweep
		// tick retries.
		s.log.Warn().Err(err).Str("trigger", trigger).Msg("Autosave commit failed")
	}
}

// doCommit runs the injected commit and clears dirtiness only when no
// edit arrived while the commit was in flight.
func (s *Scheduler) doCommit(ctx context.Context, gen uint64, trigger string) error {
	s.onStatus(StatusSaving)

	if err := s.commit(ctx); err != nil {
		s.onStatus(StatusError)
		return err
	}

	s.mu.Lock()
	if s.editGen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	s.log.Debug().Str("trigger", trigger).Msg("Draft committed")
	s.onStatus(StatusSaved)
	return nil
}
