package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinutesPerDay is the length of the evaluation cycle.
const MinutesPerDay = 24 * 60

// TimeOfDay is a device-local minute of day, 0..1439.
type TimeOfDay int

// Invalid marks a time that could not be parsed from storage.
const Invalid TimeOfDay = -1

// At builds a TimeOfDay from an hour and minute. Out-of-range input yields Invalid.
func At(hour, minute int) TimeOfDay {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Invalid
	}
	return TimeOfDay(hour*60 + minute)
}

// Of returns the minute of day of t in t's location.
func Of(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// ParseTimeOfDay parses "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || len(hs) < 1 || len(hs) > 2 || len(ms) != 2 || !digits(hs) || !digits(ms) {
		return Invalid, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	h, _ := strconv.Atoi(hs)
	m, _ := strconv.Atoi(ms)
	t := At(h, m)
	if t == Invalid {
		return Invalid, fmt.Errorf("invalid time %q: out of range 00:00-23:59", s)
	}
	return t, nil
}

func digits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether t is within 00:00-23:59.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < MinutesPerDay
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String formats t as zero-padded HH:MM.
func (t TimeOfDay) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Add returns t shifted by n minutes, wrapping around midnight.
func (t TimeOfDay) Add(n int) TimeOfDay {
	m := (int(t) + n) % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return TimeOfDay(m)
}

// Until returns the minutes from t forward to u, wrapping around midnight.
func (t TimeOfDay) Until(u TimeOfDay) int {
	d := (int(u) - int(t)) % MinutesPerDay
	if d < 0 {
		d += MinutesPerDay
	}
	return d
}

// MarshalText encodes t as HH:MM.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("time of day %d out of range", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes H:MM or HH:MM.
func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
