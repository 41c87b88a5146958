package runner

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/flemzord/wirebot/pkg/bot"
)

// Tracker wraps a bot.Observer and remembers when the last poll reached the
// API and got a parseable answer.
type Tracker struct {
	next   bot.Observer
	now    func() time.Time
	failed atomic.Bool
	last   atomic.Int64
}

var _ bot.Observer = (*Tracker)(nil)

// NewTracker wraps next, which may be nil.
func NewTracker(next bot.Observer) *Tracker {
	return &Tracker{next: next, now: time.Now}
}

// LastSuccess returns the time of the last successful poll, or the zero
// time when none happened.
func (t *Tracker) LastSuccess() time.Time {
	ns := t.last.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ObservePoll implements bot.Observer.
func (t *Tracker) ObservePoll(delivered int) {
	if !t.failed.Swap(false) {
		t.last.Store(t.now().UnixNano())
	}
	if t.next != nil {
		t.next.ObservePoll(delivered)
	}
}

// ObserveFailure implements bot.Observer.
func (t *Tracker) ObserveFailure(kind error) {
	if errors.Is(kind, bot.ErrConnect) || errors.Is(kind, bot.ErrPartialBody) || errors.Is(kind, bot.ErrParse) {
		t.failed.Store(true)
	}
	if t.next != nil {
		t.next.ObserveFailure(kind)
	}
}

// ObserveSend implements bot.Observer.
func (t *Tracker) ObserveSend(method string, attempts int, err error) {
	if t.next != nil {
		t.next.ObserveSend(method, attempts, err)
	}
}
