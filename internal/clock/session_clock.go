package clock

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/model"
)

// SessionClock is the countdown for one exam session. It ticks once per
// second and recomputes the remaining time from wall clock on every
// tick instead of decrementing, so the displayed value self-corrects
// after any stall. It is the sole trigger for time-based expiry.
type SessionClock struct {
	clock Clock
	log   zerolog.Logger

	ticks   chan int64
	expired chan struct{}
	stop    chan struct{}

	stopOnce   sync.Once
	expireOnce sync.Once
}

// NewSessionClock creates a clock that reads time from clk.
func NewSessionClock(clk Clock, log zerolog.Logger) *SessionClock {
	return &SessionClock{
		clock:   clk,
		log:     log.With().Str("component", "session_clock").Logger(),
		ticks:   make(chan int64, 1),
		expired: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

// Ticks streams the remaining whole seconds, once per second. Slow
// consumers only ever miss intermediate values, never the latest one.
func (c *SessionClock) Ticks() <-chan int64 { return c.ticks }

// Expired is closed exactly once when the remaining time reaches zero.
func (c *SessionClock) Expired() <-chan struct{} { return c.expired }

// Start begins ticking against the given window. If the window is
// already expired at start (a session resumed past its deadline), the
// expiry signal fires immediately with no one-second delay.
func (c *SessionClock) Start(window model.DeadlineWindow) {
	remaining := window.Remaining(c.clock.Now())
	c.emit(remaining)
	if remaining == 0 {
		c.expire()
		return
	}

	go c.run(window)
}

// Stop cancels the ticker. Safe to call multiple times and after expiry.
func (c *SessionClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *SessionClock) run(window model.DeadlineWindow) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			remaining := window.Remaining(c.clock.Now())
			c.emit(remaining)
			if remaining == 0 {
				c.expire()
				return
			}
		}
	}
}

// emit delivers the latest remaining value, replacing a stale unread one.
func (c *SessionClock) emit(remaining int64) {
	for {
		select {
		case c.ticks <- remaining:
			return
		default:
			select {
			case <-c.ticks:
			default:
			}
		}
	}
}

func (c *SessionClock) expire() {
	c.expireOnce.Do(func() {
		c.log.Info().Msg("Session deadline reached")
		close(c.expired)
	})
}
