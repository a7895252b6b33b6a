package session

import (
	"context"
	"time"

	"github.com/proctoraegis/examclient/internal/model"
)

// Finalize resolves the whole session, triggered by the clock's expiry
// signal or a user-confirmed submit. It runs at most once: the latch is
// checked before any side effect, so a second concurrent trigger
// observes it and returns false. Cleanup failures are logged but never
// keep the student locked in a finished exam.
func (c *Controller) Finalize(ctx context.Context, reason FinalizeReason) bool {
	// Only a running session finalizes. Before a successful Load there
	// are no timers to stop and no snapshot to clear.
	c.mu.Lock()
	if c.state != model.SessionInProgress {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if !c.finalizing.CompareAndSwap(false, true) {
		return false
	}

	c.log.Info().Str("reason", string(reason)).Msg("Finalizing session")

	c.mu.Lock()
	c.setStateLocked(model.SessionFinalizing)
	sched, sclock := c.sched, c.sclock
	examID := c.exam.ID
	registrationID := c.registration.ID
	c.mu.Unlock()

	// 1. Stop both timer sources before any further mutation.
	sclock.Stop()
	sched.Stop()

	// 2. Capture the last unsaved edit, best-effort.
	flushCtx, cancel := context.WithTimeout(ctx, c.cfg.FlushTimeout)
	defer cancel()
	if err := sched.Flush(flushCtx); err != nil {
		c.log.Warn().Err(err).Msg("Final flush failed")
	}

	// 3. Mark the registration completed, best-effort and non-blocking
	// for the rest of the sequence.
	if err := c.api.UpdateRegistrationStatus(ctx, registrationID, model.RegistrationStatusCompleted); err != nil {
		c.log.Warn().Err(err).Msg("Registration completion update failed")
	}

	// 4. Erase the persisted snapshot. This is the single Clear of the
	// session's lifetime.
	if err := c.sessions.Clear(examID.String()); err != nil {
		c.log.Warn().Err(err).Msg("Snapshot clear failed")
	}

	// 5. Terminal state, always reached.
	c.mu.Lock()
	c.setStateLocked(model.SessionCompleted)
	c.mu.Unlock()

	// 6. Hand off to session teardown after the grace delay, whether or
	// not the user proceeds manually first.
	time.AfterFunc(c.cfg.FinalizeGrace, c.teardown)

	return true
}
