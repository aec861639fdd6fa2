package timetable

import (
	"context"
	"time"

	"github.com/voyagen/arematv/internal/models"
)

// DefaultFollowInterval is how often a Follower compares the clock against
// the current program.
const DefaultFollowInterval = 250 * time.Millisecond

// EventKind classifies a Follower event.
type EventKind string

const (
	// EventStarted fires when an upcoming program goes on air.
	EventStarted EventKind = "started"
	// EventRollover fires when the current program ended and the next one on
	// the channel took over.
	EventRollover EventKind = "rollover"
	// EventArchived fires when the current program ended with nothing after it.
	EventArchived EventKind = "archived"
)

// Event is emitted by a Follower whenever the on-air state changes.
type Event struct {
	Kind    EventKind      `json:"kind"`
	Program models.Program `json:"program"`
	At      time.Time      `json:"at"`
}

// NextFunc finds the program following current on its channel.
type NextFunc func(ctx context.Context, current models.Program) (models.Program, bool, error)

// Follower tracks one program on air and rolls over to the next program on
// the same channel when it ends.
type Follower struct {
	Next     NextFunc
	Interval time.Duration
	Now      func() time.Time
}

func (f *Follower) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

// Follow emits events for program until it is archived or ctx is done. The
// returned channel is closed when following stops. Errors from Next end the
// stream after an EventArchived for the program that could not be continued.
func (f *Follower) Follow(ctx context.Context, program models.Program) <-chan Event {
	interval := f.Interval
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	events := make(chan Event, 1)

	// The starting state is taken before returning so that a change right
	// after Follow returns is still seen as a transition.
	initial := f.now()
	status := StatusAt(program, initial)
	started := status == StatusLive

	go func() {
		defer close(events)
		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		current := program
		if status == StatusArchived {
			emit(Event{Kind: EventArchived, Program: current, At: initial})
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			now := f.now()
			switch StatusAt(current, now) {
			case StatusUpcoming:
				continue
			case StatusLive:
				if !started {
					started = true
					if !emit(Event{Kind: EventStarted, Program: current, At: now}) {
						return
					}
				}
				continue
			}

			next, ok, err := f.Next(ctx, current)
			if err != nil || !ok {
				emit(Event{Kind: EventArchived, Program: current, At: now})
				return
			}
			current = next
			started = true
			if !emit(Event{Kind: EventRollover, Program: current, At: now}) {
				return
			}
		}
	}()
	return events
}
