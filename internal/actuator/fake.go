package actuator

import (
	"context"
	"sync"
	"time"
)

// Call is one command received by a Fake.
type Call struct {
	Actuator      Name
	BrightnessPct int
	On            bool
}

// Fake is a Gateway test double that records commands.
type Fake struct {
	mu sync.Mutex

	calls  []Call
	closed bool

	// Scripted failures, returned until cleared.
	lightErr error
	pumpErr  error
	// delay is applied to every call; the call returns early if ctx is done.
	delay time.Duration
}

// NewFake creates a Fake gateway.
func NewFake() *Fake {
	return &Fake{}
}

// SetLightBrightness records the command.
func (f *Fake) SetLightBrightness(ctx context.Context, pct int) error {
	if err := f.wait(ctx); err != nil {
		return &Error{Actuator: Light, Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lightErr != nil {
		return &Error{Actuator: Light, Err: f.lightErr}
	}
	f.calls = append(f.calls, Call{Actuator: Light, BrightnessPct: pct})
	return nil
}

// SetPumpOn records the command.
func (f *Fake) SetPumpOn(ctx context.Context, on bool) error {
	if err := f.wait(ctx); err != nil {
		return &Error{Actuator: Pump, Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pumpErr != nil {
		return &Error{Actuator: Pump, Err: f.pumpErr}
	}
	f.calls = append(f.calls, Call{Actuator: Pump, On: on})
	return nil
}

// Close marks the gateway as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// FailLight makes light commands fail with err until called with nil.
func (f *Fake) FailLight(err error) {
	f.mu.Lock()
	f.lightErr = err
	f.mu.Unlock()
}

// FailPump makes pump commands fail with err until called with nil.
func (f *Fake) FailPump(err error) {
	f.mu.Lock()
	f.pumpErr = err
	f.mu.Unlock()
}

// SetDelay makes every call block for d.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// Calls returns a copy of the recorded commands.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Reset clears the recorded commands.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) wait(ctx context.Context) error {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
