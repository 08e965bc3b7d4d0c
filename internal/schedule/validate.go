package schedule

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Fields is a candidate rule payload as decoded from JSON.
type Fields map[string]any

// ValidateCreate normalizes and validates a new rule payload. The returned
// rule has no ID; the store assigns one.
func ValidateCreate(f Fields) (Rule, error) {
	kind, err := kindField(f)
	if err != nil {
		return Rule{}, err
	}
	return build(kind, f)
}

// ValidateUpdate merges f over existing and validates the result against the
// existing rule's kind. A type in f must match that kind.
func ValidateUpdate(existing Rule, f Fields) (Rule, error) {
	if _, ok := f["type"]; ok {
		kind, err := kindField(f)
		if err != nil {
			return Rule{}, err
		}
		if kind != existing.Kind {
			return Rule{}, &ValidationError{
				Field:  "type",
				Reason: fmt.Sprintf("cannot change from %s to %s", existing.Kind, kind),
			}
		}
	}
	if !existing.Kind.Valid() {
		return Rule{}, &ValidationError{Field: "type", Reason: "must be 'light' or 'pump'"}
	}

	merged := existing.Fields()
	for k, v := range f {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	r, err := build(existing.Kind, merged)
	if err != nil {
		return Rule{}, err
	}
	r.ID = existing.ID
	return r, nil
}

// Fields returns the external field set of r, without the id.
func (r Rule) Fields() Fields {
	if r.raw != nil {
		f := make(Fields, len(r.raw))
		for k, v := range r.raw {
			if k != "id" {
				f[k] = v
			}
		}
		return f
	}
	f := Fields{
		"type":    string(r.Kind),
		"enabled": r.Enabled,
		"paused":  r.Paused,
	}
	switch {
	case r.Light != nil:
		f["start_time"] = r.Light.Start.String()
		if r.Light.End != nil {
			f["end_time"] = r.Light.End.String()
		} else {
			f["end_time"] = nil
		}
		f["brightness_pct"] = r.Light.BrightnessPct
	case r.Pump != nil:
		f["time"] = r.Pump.At.String()
		f["duration_minutes"] = r.Pump.DurationMinutes
	}
	return f
}

func build(kind Kind, f Fields) (Rule, error) {
	enabled, err := boolField(f, "enabled", true)
	if err != nil {
		return Rule{}, err
	}
	paused, err := boolField(f, "paused", false)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Kind: kind, Enabled: enabled, Paused: paused}

	switch kind {
	case KindLight:
		start, err := timeField(f, "start_time")
		if err != nil {
			return Rule{}, err
		}
		end, err := optionalTimeField(f, "end_time")
		if err != nil {
			return Rule{}, err
		}
		pct, err := intField(f, "brightness_pct", 0, MinBrightnessPct, MaxBrightnessPct, "must be 0-100")
		if err != nil {
			return Rule{}, err
		}
		r.Light = &LightSpec{Start: start, End: end, BrightnessPct: pct}
	case KindPump:
		at, err := timeField(f, "time")
		if err != nil {
			return Rule{}, err
		}
		dur, err := intField(f, "duration_minutes", DefaultDurationMinutes, MinDurationMinutes, MaxDurationMinutes, "must be 1-120")
		if err != nil {
			return Rule{}, err
		}
		r.Pump = &PumpSpec{At: at, DurationMinutes: dur}
	default:
		return Rule{}, &ValidationError{Field: "type", Reason: "must be 'light' or 'pump'"}
	}
	return r, nil
}

func kindField(f Fields) (Kind, error) {
	s, _ := f["type"].(string)
	kind := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.Valid() {
		return "", &ValidationError{Field: "type", Reason: "must be 'light' or 'pump'"}
	}
	return kind, nil
}

func timeField(f Fields, key string) (TimeOfDay, error) {
	s, _ := f[key].(string)
	if strings.TrimSpace(s) == "" {
		return Invalid, &ValidationError{Field: key, Reason: "is required (HH:MM)"}
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return Invalid, &ValidationError{Field: key, Reason: "must be HH:MM (00:00-23:59)"}
	}
	return t, nil
}

// optionalTimeField treats an absent key, null and the empty string as unset.
func optionalTimeField(f Fields, key string) (*TimeOfDay, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, &ValidationError{Field: key, Reason: "must be HH:MM (00:00-23:59)"}
	}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return nil, &ValidationError{Field: key, Reason: "must be HH:MM (00:00-23:59)"}
	}
	return &t, nil
}

func intField(f Fields, key string, def, lo, hi int, reason string) (int, error) {
	v, ok := f[key]
	if !ok {
		return def, nil
	}
	n, ok := toInt(v)
	if !ok || n < lo || n > hi {
		return 0, &ValidationError{Field: key, Reason: reason}
	}
	return n, nil
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	}
	return 0, false
}

func boolField(f Fields, key string, def bool) (bool, error) {
	v, ok := f[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ValidationError{Field: key, Reason: "must be true or false"}
	}
	return b, nil
}
