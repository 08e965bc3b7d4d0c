package schedule

import (
	"fmt"
	"time"
)

// Kind identifies the rule variant.
type Kind string

// Rule kinds.
const (
	KindLight Kind = "light"
	KindPump  Kind = "pump"
)

// Valid reports whether k is a known rule kind.
func (k Kind) Valid() bool {
	return k == KindLight || k == KindPump
}

// Brightness and duration bounds.
const (
	MinBrightnessPct   = 0
	MaxBrightnessPct   = 100
	MinDurationMinutes = 1
	MaxDurationMinutes = 120

	// DefaultDurationMinutes is used when a pump rule omits duration_minutes.
	DefaultDurationMinutes = 5
)

// Rule is a persisted declarative instruction for one actuator.
// Exactly one of Light or Pump is set, matching Kind.
type Rule struct {
	ID      string
	Kind    Kind
	Enabled bool
	Paused  bool

	Light *LightSpec
	Pump  *PumpSpec

	// raw holds the stored fields of a record that could not be decoded into
	// a valid rule. It is written back unchanged on save.
	raw map[string]any
	// opaque holds a stored entry that is not a JSON object at all.
	opaque []byte
	fault  error
}

// LightSpec holds the fields of a light rule.
type LightSpec struct {
	Start TimeOfDay
	// End is nil for a set-and-stay rule.
	End           *TimeOfDay
	BrightnessPct int
}

// PumpSpec holds the fields of a pump rule.
type PumpSpec struct {
	At              TimeOfDay
	DurationMinutes int
}

// NewLightRule builds an enabled light rule. end may be nil.
func NewLightRule(start TimeOfDay, end *TimeOfDay, brightnessPct int) Rule {
	spec := &LightSpec{Start: start, BrightnessPct: brightnessPct}
	if end != nil {
		e := *end
		spec.End = &e
	}
	return Rule{Kind: KindLight, Enabled: true, Light: spec}
}

// NewPumpRule builds an enabled pump rule.
func NewPumpRule(at TimeOfDay, durationMinutes int) Rule {
	return Rule{Kind: KindPump, Enabled: true, Pump: &PumpSpec{At: at, DurationMinutes: durationMinutes}}
}

// Active reports whether the rule takes part in evaluation.
func (r Rule) Active() bool {
	return r.Enabled && !r.Paused
}

// Check verifies every rule invariant. Rules loaded from storage are checked
// before evaluation so a corrupted record cannot poison the rest of the set.
func (r Rule) Check() error {
	if r.fault != nil {
		return r.fault
	}
	switch r.Kind {
	case KindLight:
		if r.Light == nil || r.Pump != nil {
			return fmt.Errorf("light rule %q has mismatched fields", r.ID)
		}
		if !r.Light.Start.Valid() {
			return &ValidationError{Field: "start_time", Reason: "must be HH:MM (00:00-23:59)"}
		}
		if r.Light.End != nil && !r.Light.End.Valid() {
			return &ValidationError{Field: "end_time", Reason: "must be HH:MM (00:00-23:59)"}
		}
		if r.Light.BrightnessPct < MinBrightnessPct || r.Light.BrightnessPct > MaxBrightnessPct {
			return &ValidationError{Field: "brightness_pct", Reason: "must be 0-100"}
		}
	case KindPump:
		if r.Pump == nil || r.Light != nil {
			return fmt.Errorf("pump rule %q has mismatched fields", r.ID)
		}
		if !r.Pump.At.Valid() {
			return &ValidationError{Field: "time", Reason: "must be HH:MM (00:00-23:59)"}
		}
		if r.Pump.DurationMinutes < MinDurationMinutes || r.Pump.DurationMinutes > MaxDurationMinutes {
			return &ValidationError{Field: "duration_minutes", Reason: "must be 1-120"}
		}
	default:
		return &ValidationError{Field: "type", Reason: "must be 'light' or 'pump'"}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	c := r
	if r.Light != nil {
		l := *r.Light
		if r.Light.End != nil {
			e := *r.Light.End
			l.End = &e
		}
		c.Light = &l
	}
	if r.Pump != nil {
		p := *r.Pump
		c.Pump = &p
	}
	if r.raw != nil {
		c.raw = make(map[string]any, len(r.raw))
		for k, v := range r.raw {
			c.raw[k] = v
		}
	}
	return c
}

// Window returns the activation window of a pump rule.
func (p PumpSpec) Window(ruleID string) ActivationWindow {
	return ActivationWindow{
		RuleID:        ruleID,
		ActivatesAt:   p.At,
		DeactivatesAt: p.At.Add(p.DurationMinutes),
	}
}

// ActivationWindow is the half-open interval [ActivatesAt, DeactivatesAt)
// during which a pump rule wants the pump on. It may wrap past midnight.
type ActivationWindow struct {
	RuleID        string    `json:"rule_id"`
	ActivatesAt   TimeOfDay `json:"activates_at"`
	DeactivatesAt TimeOfDay `json:"deactivates_at"`
}

// Covers reports whether minute m falls inside the window.
func (w ActivationWindow) Covers(m TimeOfDay) bool {
	length := w.ActivatesAt.Until(w.DeactivatesAt)
	return w.ActivatesAt.Until(m) < length
}

// Overrides are controller-wide switches layered over the rule set.
type Overrides struct {
	LightPausedUntil *time.Time `json:"light_rules_paused_until"`
	PumpPausedUntil  *time.Time `json:"pump_rules_paused_until"`
	ManualPump       *ManualRun `json:"manual_pump"`
}

// ManualRun is a manual watering run: the pump is on for [Since, Until).
type ManualRun struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// LightPaused reports whether light rules are paused at now.
func (o Overrides) LightPaused(now time.Time) bool {
	return o.LightPausedUntil != nil && now.Before(*o.LightPausedUntil)
}

// PumpPaused reports whether pump rules are paused at now.
func (o Overrides) PumpPaused(now time.Time) bool {
	return o.PumpPausedUntil != nil && now.Before(*o.PumpPausedUntil)
}

// ManualActive reports whether a manual watering run covers now.
func (o Overrides) ManualActive(now time.Time) bool {
	if o.ManualPump == nil {
		return false
	}
	return !now.Before(o.ManualPump.Since) && now.Before(o.ManualPump.Until)
}

// Prune drops overrides that have expired at now.
func (o Overrides) Prune(now time.Time) Overrides {
	out := o.Clone()
	if out.LightPausedUntil != nil && !now.Before(*out.LightPausedUntil) {
		out.LightPausedUntil = nil
	}
	if out.PumpPausedUntil != nil && !now.Before(*out.PumpPausedUntil) {
		out.PumpPausedUntil = nil
	}
	if out.ManualPump != nil && !now.Before(out.ManualPump.Until) {
		out.ManualPump = nil
	}
	return out
}

// Clone returns a deep copy of o.
func (o Overrides) Clone() Overrides {
	var c Overrides
	if o.LightPausedUntil != nil {
		t := *o.LightPausedUntil
		c.LightPausedUntil = &t
	}
	if o.PumpPausedUntil != nil {
		t := *o.PumpPausedUntil
		c.PumpPausedUntil = &t
	}
	if o.ManualPump != nil {
		m := *o.ManualPump
		c.ManualPump = &m
	}
	return c
}
