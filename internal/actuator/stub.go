//go:build !linux

package actuator

import (
	"context"
	"errors"
	"time"
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

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms.
func NewReal(cfg RealConfig) (*Real, error) {
	return nil, errors.New("actuator: hardware not supported on this platform (requires Linux)")
}

// SetLightBrightness is not implemented on non-Linux platforms.
func (r *Real) SetLightBrightness(ctx context.Context, pct int) error {
	return &Error{Actuator: Light, Err: errors.New("not supported")}
}

// SetPumpOn is not implemented on non-Linux platforms.
func (r *Real) SetPumpOn(ctx context.Context, on bool) error {
	return &Error{Actuator: Pump, Err: errors.New("not supported")}
}

// Close is not implemented on non-Linux platforms.
func (r *Real) Close() error {
	return nil
}
