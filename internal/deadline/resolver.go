// Package deadline derives the absolute start/end window of an exam
// session from the available, partially-reliable timing sources.
package deadline

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/proctoraegis/examclient/internal/model"
)

// Resolver picks a DeadlineWindow for a session. It never fails: every
// rule that cannot apply falls through to the next, ending at a local
// fallback, so malformed server timing degrades instead of erroring.
type Resolver struct {
	fallback time.Duration
	log      zerolog.Logger
}

// NewResolver creates a resolver. fallback is the exam length assumed
// when the server provides no usable timing at all.
func NewResolver(fallback time.Duration, log zerolog.Logger) *Resolver {
	return &Resolver{
		fallback: fallback,
		log:      log.With().Str("component", "deadline_resolver").Logger(),
	}
}

// Resolve returns the session window, first rule wins:
//
//  1. a prior snapshot's window, verbatim: a reload never extends or
//     resets a running countdown;
//  2. explicit server start+end instants;
//  3. server start plus duration;
//  4. now .. now+duration, the session beginning at first load.
func (r *Resolver) Resolve(exam *model.Exam, prior *model.SessionSnapshot, now time.Time) model.DeadlineWindow {
	if prior != nil && prior.DeadlineWindow != nil && prior.DeadlineWindow.Valid() {
		r.log.Debug().
			Time("end", prior.DeadlineWindow.End()).
			Msg("Reusing persisted deadline window")
		return *prior.DeadlineWindow
	}

	if exam != nil && usable(exam.StartTime) && usable(exam.EndTime) && !exam.EndTime.Before(*exam.StartTime) {
		return model.NewDeadlineWindow(*exam.StartTime, *exam.EndTime)
	}

	if exam != nil && usable(exam.StartTime) && exam.Duration() > 0 {
		return model.NewDeadlineWindow(*exam.StartTime, exam.StartTime.Add(exam.Duration()))
	}

	duration := r.fallback
	if exam != nil && exam.Duration() > 0 {
		duration = exam.Duration()
	}
	r.log.Debug().Dur("duration", duration).Msg("No server timing, session begins now")
	return model.NewDeadlineWindow(now, now.Add(duration))
}

// usable treats a missing or zero timestamp as absent. Unparseable
// server values decode to nil/zero and fall through the same way.
func usable(t *time.Time) bool {
	return t != nil && !t.IsZero()
}
