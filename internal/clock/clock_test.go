package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateKeepsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+30*60)
	in := time.Date(2026, 3, 14, 9, 30, 45, 123, loc)

	got := Truncate(in)

	assert.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestUntilNextMinute(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Minute, UntilNextMinute(base))
	assert.Equal(t, 45*time.Second, UntilNextMinute(base.Add(15*time.Second)))
	assert.Equal(t, time.Millisecond, UntilNextMinute(base.Add(59*time.Second+999*time.Millisecond)))
}

func TestSystemNowIsTruncated(t *testing.T) {
	c := NewSystem(time.UTC)
	now := c.Now()

	assert.Zero(t, now.Second())
	assert.Zero(t, now.Nanosecond())
	assert.Equal(t, time.UTC, now.Location())
}

func TestFakeNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 29, 30, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, time.Date(2026, 1, 1, 9, 29, 0, 0, time.UTC), f.Now())

	f.Advance(30 * time.Second)
	assert.Equal(t, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), f.Now())
}

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	ch := f.After(time.Minute)
	require.Equal(t, 1, f.Waiters())

	f.Advance(30 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	f.Advance(30 * time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, time.Date(2026, 1, 1, 9, 1, 0, 0, time.UTC), got)
	default:
		t.Fatal("expected waiter to fire")
	}
	assert.Equal(t, 0, f.Waiters())
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	select {
	case <-f.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
}

func TestFakeSetFiresDueWaiters(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	early := f.After(time.Minute)
	late := f.After(time.Hour)

	f.Set(time.Date(2026, 1, 1, 9, 5, 0, 0, time.UTC))

	select {
	case <-early:
	default:
		t.Fatal("expected early waiter to fire")
	}
	select {
	case <-late:
		t.Fatal("late waiter fired")
	default:
	}
	assert.Equal(t, 1, f.Waiters())
}

func TestFakeNextMinute(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 9, 0, 40, 0, time.UTC))

	ch := f.NextMinute()
	f.Advance(19 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	f.Advance(time.Second)
	select {
	case got := <-ch:
		assert.Equal(t, time.Date(2026, 1, 1, 9, 1, 0, 0, time.UTC), got)
	default:
		t.Fatal("expected boundary to fire")
	}
}

func TestFakeNextMinuteAtBoundaryWaitsFullMinute(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	ch := f.NextMinute()
	f.Advance(59 * time.Second)
	assert.Equal(t, 1, f.Waiters())
	f.Advance(time.Second)
	assert.Len(t, ch, 1)
}

func TestClockImplementations(t *testing.T) {
	var _ Clock = NewSystem(nil)
	var _ Clock = NewFake(time.Time{})
}
