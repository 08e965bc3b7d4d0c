package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
)

type lightJSON struct {
	ID            string  `json:"id"`
	Type          Kind    `json:"type"`
	StartTime     string  `json:"start_time"`
	EndTime       *string `json:"end_time"`
	BrightnessPct int     `json:"brightness_pct"`
	Enabled       bool    `json:"enabled"`
	Paused        bool    `json:"paused"`
}

type pumpJSON struct {
	ID              string `json:"id"`
	Type            Kind   `json:"type"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Enabled         bool   `json:"enabled"`
	Paused          bool   `json:"paused"`
}

// MarshalJSON encodes r in its external form with zero-padded HH:MM times.
func (r Rule) MarshalJSON() ([]byte, error) {
	if r.opaque != nil {
		return r.opaque, nil
	}
	if r.raw != nil {
		out := make(map[string]any, len(r.raw)+1)
		for k, v := range r.raw {
			out[k] = v
		}
		out["id"] = r.ID
		return json.Marshal(out)
	}
	switch {
	case r.Kind == KindLight && r.Light != nil:
		var end *string
		if r.Light.End != nil {
			s := r.Light.End.String()
			end = &s
		}
		return json.Marshal(lightJSON{
			ID:            r.ID,
			Type:          KindLight,
			StartTime:     r.Light.Start.String(),
			EndTime:       end,
			BrightnessPct: r.Light.BrightnessPct,
			Enabled:       r.Enabled,
			Paused:        r.Paused,
		})
	case r.Kind == KindPump && r.Pump != nil:
		return json.Marshal(pumpJSON{
			ID:              r.ID,
			Type:            KindPump,
			Time:            r.Pump.At.String(),
			DurationMinutes: r.Pump.DurationMinutes,
			Enabled:         r.Enabled,
			Paused:          r.Paused,
		})
	}
	return nil, fmt.Errorf("rule %q: cannot encode kind %q", r.ID, r.Kind)
}

// UnmarshalJSON decodes a stored rule. Any JSON value decodes: a record that
// violates the schema becomes a rule whose Check reports the fault, and its
// original content is kept so a later save does not lose it.
func (r *Rule) UnmarshalJSON(b []byte) error {
	var f Fields
	if err := json.Unmarshal(b, &f); err != nil || f == nil {
		*r = Malformed(b, fmt.Errorf("expected JSON object"))
		return nil
	}
	id, _ := f["id"].(string)

	kind, err := kindField(f)
	if err == nil {
		var built Rule
		built, err = build(kind, f)
		if err == nil {
			built.ID = id
			*r = built
			return nil
		}
	}

	s, _ := f["type"].(string)
	enabled, _ := f["enabled"].(bool)
	paused, _ := f["paused"].(bool)
	*r = Rule{
		ID:      id,
		Kind:    Kind(strings.ToLower(strings.TrimSpace(s))),
		Enabled: enabled,
		Paused:  paused,
		raw:     f,
		fault:   fmt.Errorf("stored rule %q is malformed: %w", id, err),
	}
	return nil
}

// Malformed returns a rule standing in for a stored entry that could not be
// decoded. Check reports err and the entry is written back as it was read.
// Bytes that are not valid JSON are kept as a JSON string.
func Malformed(stored []byte, err error) Rule {
	kept := append([]byte(nil), stored...)
	if !json.Valid(kept) {
		kept, _ = json.Marshal(string(stored))
	}
	return Rule{
		opaque: kept,
		fault:  fmt.Errorf("stored rule %s is malformed: %w", abbreviate(stored), err),
	}
}

func abbreviate(b []byte) string {
	const limit = 40
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
