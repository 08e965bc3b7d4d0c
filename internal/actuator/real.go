//go:build linux

package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealConfig selects the hardware lines.
type RealConfig struct {
	GPIOChip      string
	PumpLine      int
	PumpActiveLow bool

	PWMRoot    string
	PWMChip    int
	PWMChannel int
	PWMPeriod  time.Duration
}

// Real drives actual hardware: the pump relay on a GPIO output line and the
// light through a PWM channel.
type Real struct {
	// mu serializes hardware writes.
	mu   sync.Mutex
	chip *gpiocdev.Chip
	pump *gpiocdev.Line
	pwm  *PWM
}

// NewReal requests the pump line (driven off) and opens the PWM channel.
func NewReal(cfg RealConfig) (*Real, error) {
	chip, err := gpiocdev.NewChip(cfg.GPIOChip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if cfg.PumpActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := chip.RequestLine(cfg.PumpLine, opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pump line %d: %w", cfg.PumpLine, err)
	}

	root := cfg.PWMRoot
	if root == "" {
		root = SysfsPWMRoot
	}
	pwm, err := OpenPWM(root, cfg.PWMChip, cfg.PWMChannel, cfg.PWMPeriod)
	if err != nil {
		line.Close()
		chip.Close()
		return nil, fmt.Errorf("open light pwm: %w", err)
	}

	return &Real{chip: chip, pump: line, pwm: pwm}, nil
}

// SetLightBrightness sets the PWM duty cycle.
func (r *Real) SetLightBrightness(ctx context.Context, pct int) error {
	if err := ctx.Err(); err != nil {
		return &Error{Actuator: Light, Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pwm.SetDuty(pct); err != nil {
		return &Error{Actuator: Light, Err: err}
	}
	return nil
}

// SetPumpOn drives the relay line. Active-low wiring is handled by the line
// configuration, so 1 always means on.
func (r *Real) SetPumpOn(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return &Error{Actuator: Pump, Err: err}
	}
	v := 0
	if on {
		v = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pump.SetValue(v); err != nil {
		return &Error{Actuator: Pump, Err: fmt.Errorf("set line value: %w", err)}
	}
	return nil
}

// Close turns the pump off, turns the light off and releases the hardware.
func (r *Real) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error

	if r.pump != nil {
		if err := r.pump.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive pump off: %w", err))
		}
		if err := r.pump.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pump line: %w", err))
		}
	}
	if r.pwm != nil {
		if err := r.pwm.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pwm: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
