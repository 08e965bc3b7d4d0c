package schedule

import (
	"sort"
	"time"
)

// LightState is the desired light output.
type LightState struct {
	// Hold means light rules are paused: leave the light alone.
	Hold          bool
	BrightnessPct int
	// RuleID is the rule whose event set the brightness, if any.
	RuleID string
}

// PumpState is the desired pump output.
type PumpState struct {
	// Hold means pump rules are paused and no manual run is active.
	Hold bool
	On   bool
	// Manual is set when a manual watering run forces the pump on.
	Manual bool
}

// Desired is the state both actuators should be in.
type Desired struct {
	Light LightState
	Pump  PumpState
}

// Result is the outcome of one evaluation.
type Result struct {
	At     time.Time
	Minute TimeOfDay
	Desired

	// Windows are the pump activation windows covering Minute.
	Windows []ActivationWindow
	// Opened and Closed are the differences from the prior window set.
	Opened []ActivationWindow
	Closed []ActivationWindow

	Skipped []SkippedRule
}

// Evaluate computes the desired actuator state for now. rules must be in
// store insertion order. prior is the window set returned by the previous
// evaluation; it is used only to report openings and closings.
func Evaluate(rules []Rule, ov Overrides, now time.Time, prior []ActivationWindow) Result {
	res := Result{At: now, Minute: Of(now)}

	var lights []indexedRule
	var pumps []Rule
	for i, r := range rules {
		if err := r.Check(); err != nil {
			res.Skipped = append(res.Skipped, SkippedRule{RuleID: r.ID, Err: err})
			continue
		}
		if !r.Active() {
			continue
		}
		switch r.Kind {
		case KindLight:
			lights = append(lights, indexedRule{index: i, rule: r})
		case KindPump:
			pumps = append(pumps, r)
		}
	}

	if ov.LightPaused(now) {
		res.Light.Hold = true
	} else {
		res.Light = desiredLight(lights, res.Minute)
	}

	manual := ov.ManualActive(now)
	if !ov.PumpPaused(now) {
		res.Windows = openWindows(pumps, res.Minute)
		res.Pump.On = len(res.Windows) > 0
	} else if !manual {
		res.Pump.Hold = true
	}
	if manual {
		res.Pump.On = true
		res.Pump.Manual = true
	}

	res.Opened = diffWindows(res.Windows, prior)
	res.Closed = diffWindows(prior, res.Windows)
	return res
}

type indexedRule struct {
	index int
	rule  Rule
}

type lightEvent struct {
	at     TimeOfDay
	order  int
	pct    int
	ruleID string
}

// desiredLight returns the value of the latest event at or before now. Events
// at the same minute are ordered by store insertion, so the last inserted rule
// wins; within one rule the ON event precedes its OFF event. When now precedes
// every event the previous day's last event still applies.
func desiredLight(rules []indexedRule, now TimeOfDay) LightState {
	events := make([]lightEvent, 0, 2*len(rules))
	for _, ir := range rules {
		l := ir.rule.Light
		events = append(events, lightEvent{at: l.Start, order: 2 * ir.index, pct: l.BrightnessPct, ruleID: ir.rule.ID})
		if l.End != nil {
			events = append(events, lightEvent{at: *l.End, order: 2*ir.index + 1, pct: 0, ruleID: ir.rule.ID})
		}
	}
	if len(events) == 0 {
		return LightState{}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].at != events[j].at {
			return events[i].at < events[j].at
		}
		return events[i].order < events[j].order
	})

	idx := len(events) - 1
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].at <= now {
			idx = i
			break
		}
	}
	return LightState{BrightnessPct: events[idx].pct, RuleID: events[idx].ruleID}
}

// openWindows recomputes every pump rule's window from its fields and now.
// Nothing carries over between calls, so a restart mid-window resumes.
func openWindows(rules []Rule, now TimeOfDay) []ActivationWindow {
	var open []ActivationWindow
	for _, r := range rules {
		w := r.Pump.Window(r.ID)
		if w.Covers(now) {
			open = append(open, w)
		}
	}
	return open
}

func diffWindows(a, b []ActivationWindow) []ActivationWindow {
	var out []ActivationWindow
	for _, w := range a {
		found := false
		for _, o := range b {
			if o == w {
				found = true
				break
			}
		}
		if !found {
			out = append(out, w)
		}
	}
	return out
}
