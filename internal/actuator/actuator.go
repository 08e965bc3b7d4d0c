// Package actuator drives the grow light and the pump.
// The real implementation uses a Linux GPIO character device for the pump
// relay and the sysfs PWM interface for the light.
// The fake implementation allows testing without hardware.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Name identifies an actuator.
type Name string

// Actuators.
const (
	Light Name = "light"
	Pump  Name = "pump"
)

// Gateway issues hardware commands. Calls may block; implementations must
// return when ctx is done.
type Gateway interface {
	SetLightBrightness(ctx context.Context, pct int) error
	SetPumpOn(ctx context.Context, on bool) error
	Close() error
}

// Error reports a failed actuator command.
type Error struct {
	Actuator Name
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s actuator: %v", e.Actuator, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Trigger describes why a command was issued.
type Trigger string

// Triggers.
const (
	// TriggerSchedule is a command derived from the rule set.
	TriggerSchedule Trigger = "schedule"
	// TriggerManual is a manual watering run starting or ending.
	TriggerManual Trigger = "manual"
)

// Event records one successful actuator command.
type Event struct {
	Time     time.Time
	Actuator Name
	// BrightnessPct is set for Light events.
	BrightnessPct int
	// On is set for Pump events.
	On      bool
	Trigger Trigger
	// RuleID is the rule that produced the command, empty when none did.
	RuleID string
}

// String returns a short human-readable form of the command.
func (e Event) String() string {
	if e.Actuator == Light {
		return fmt.Sprintf("light %d%%", e.BrightnessPct)
	}
	if e.On {
		return "pump on"
	}
	return "pump off"
}

// ErrBusy is returned while an earlier command to the same actuator is still
// running in the hardware after its caller gave up on it.
var ErrBusy = errors.New("previous command still in progress")

// WithTimeout bounds every call to g by d. A call that exceeds the bound
// returns an *Error wrapping context.DeadlineExceeded even if g is still
// blocked in the hardware. Until that abandoned call returns, further calls
// for the same actuator fail with ErrBusy, so a late write can never land
// after a newer command.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	return &timeoutGateway{g: g, d: d, busy: make(map[Name]bool)}
}

type timeoutGateway struct {
	g Gateway
	d time.Duration

	mu   sync.Mutex
	busy map[Name]bool
}

func (t *timeoutGateway) SetLightBrightness(ctx context.Context, pct int) error {
	return t.call(ctx, Light, func(ctx context.Context) error {
		return t.g.SetLightBrightness(ctx, pct)
	})
}

func (t *timeoutGateway) SetPumpOn(ctx context.Context, on bool) error {
	return t.call(ctx, Pump, func(ctx context.Context) error {
		return t.g.SetPumpOn(ctx, on)
	})
}

func (t *timeoutGateway) Close() error {
	return t.g.Close()
}

func (t *timeoutGateway) call(ctx context.Context, name Name, fn func(context.Context) error) error {
	t.mu.Lock()
	if t.busy[name] {
		t.mu.Unlock()
		return &Error{Actuator: name, Err: ErrBusy}
	}
	t.busy[name] = true
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		t.mu.Lock()
		delete(t.busy, name)
		t.mu.Unlock()
		done <- err
	}()

	select {
	case err := <-done:
		return wrap(name, err)
	case <-ctx.Done():
		return &Error{Actuator: name, Err: ctx.Err()}
	}
}

func wrap(name Name, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Actuator: name, Err: err}
}
