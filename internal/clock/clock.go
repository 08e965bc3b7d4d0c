// Package clock supplies device-local wall-clock time at minute resolution.
// The system implementation reads the real clock; the fake implementation lets
// tests set and advance time explicitly.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the schedule engine.
type Clock interface {
	// Now returns the current device-local time truncated to the minute.
	Now() time.Time

	// After returns a channel that receives once d has elapsed.
	After(d time.Duration) <-chan time.Time

	// NextMinute returns a channel that receives at the next wall-clock
	// minute boundary.
	NextMinute() <-chan time.Time
}

// System reads the host clock in a fixed location.
type System struct {
	loc *time.Location
}

// NewSystem returns a system clock reporting times in loc.
// A nil loc means time.Local.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{loc: loc}
}

// Now returns the current time in the clock's location, truncated to the minute.
func (s *System) Now() time.Time {
	return Truncate(time.Now().In(s.loc))
}

// After wraps time.After.
func (s *System) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// NextMinute fires at the next minute boundary of the host clock.
func (s *System) NextMinute() <-chan time.Time {
	return time.After(UntilNextMinute(time.Now()))
}

// Truncate drops seconds and below while keeping the location.
// time.Time.Truncate works on absolute time and would misalign zones with
// non-minute UTC offsets.
func Truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// UntilNextMinute returns the duration from t to the next minute boundary.
// At an exact boundary it returns a full minute.
func UntilNextMinute(t time.Time) time.Duration {
	next := Truncate(t).Add(time.Minute)
	return next.Sub(t)
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake creates a Fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the fake time truncated to the minute.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Truncate(f.now)
}

// After returns a channel that fires once the fake time reaches now+d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	at := f.now.Add(d)
	if d <= 0 {
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, waiter{at: at, ch: ch})
	return ch
}

// NextMinute returns a channel that fires once the fake time reaches the next
// minute boundary.
func (f *Fake) NextMinute() <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan time.Time, 1)
	f.waiters = append(f.waiters, waiter{at: Truncate(f.now).Add(time.Minute), ch: ch})
	return ch
}

// Set moves the clock to t and fires any waiters that are due.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
	f.fireLocked()
}

// Advance moves the clock forward by d and fires any waiters that are due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
	f.fireLocked()
}

// Waiters reports how many After channels are still pending.
func (f *Fake) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

func (f *Fake) fireLocked() {
	pending := f.waiters[:0]
	for _, w := range f.waiters {
		if !f.now.Before(w.at) {
			w.ch <- f.now
			continue
		}
		pending = append(pending, w)
	}
	f.waiters = pending
}
