package schedule

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleMarshalLight(t *testing.T) {
	r := NewLightRule(At(9, 5), nil, 30)
	r.ID = "abc"

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","type":"light","start_time":"09:05","end_time":null,"brightness_pct":30,"enabled":true,"paused":false}`, string(b))
}

func TestRuleMarshalPump(t *testing.T) {
	r := NewPumpRule(At(21, 0), 10)
	r.ID = "p1"
	r.Paused = true

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1","type":"pump","time":"21:00","duration_minutes":10,"enabled":true,"paused":true}`, string(b))
}

func TestRuleUnmarshalValid(t *testing.T) {
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","type":"light","start_time":"7:00","end_time":"8:30","brightness_pct":55,"enabled":true,"paused":false}`), &r))

	require.NoError(t, r.Check())
	assert.Equal(t, "x", r.ID)
	assert.Equal(t, At(7, 0), r.Light.Start)
	assert.Equal(t, At(8, 30), *r.Light.End)
}

func TestRuleUnmarshalMalformedIsKept(t *testing.T) {
	const stored = `{"id":"bad","type":"light","start_time":"27:99","brightness_pct":10,"enabled":true,"note":"kept"}`

	var r Rule
	require.NoError(t, json.Unmarshal([]byte(stored), &r))

	assert.Equal(t, "bad", r.ID)
	assert.Equal(t, KindLight, r.Kind)
	assert.Error(t, r.Check())

	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, stored, string(b))
}

func TestRuleUnmarshalUnknownType(t *testing.T) {
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"f","type":"fan"}`), &r))
	assert.Error(t, r.Check())
}

func TestRuleUnmarshalNotObject(t *testing.T) {
	for _, stored := range []string{`[1,2]`, `null`, `42`, `"light"`} {
		var r Rule
		require.NoError(t, json.Unmarshal([]byte(stored), &r), stored)
		assert.Error(t, r.Check(), stored)

		b, err := json.Marshal(r)
		require.NoError(t, err)
		assert.JSONEq(t, stored, string(b))
	}
}

func TestRulesArrayWithNonObjects(t *testing.T) {
	var rules []Rule
	require.NoError(t, json.Unmarshal([]byte(`[{"id":"ok","type":"pump","time":"07:00","duration_minutes":5,"enabled":true},null,42]`), &rules))
	require.Len(t, rules, 3)
	assert.NoError(t, rules[0].Check())
	assert.Error(t, rules[1].Check())
	assert.Error(t, rules[2].Check())

	res := Evaluate(rules, Overrides{}, time.Date(2026, 6, 1, 7, 1, 0, 0, time.UTC), nil)
	assert.True(t, res.Pump.On)
	assert.Len(t, res.Skipped, 2)
}

func TestMalformedKeepsInvalidBytesAsString(t *testing.T) {
	r := Malformed([]byte("{not json"), errors.New("bad"))
	require.Error(t, r.Check())
	b, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `"{not json"`, string(b))
}

func TestMalformedRuleCanBeRepairedByUpdate(t *testing.T) {
	var r Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"bad","type":"pump","time":"oops","duration_minutes":5}`), &r))
	require.Error(t, r.Check())

	fixed, err := ValidateUpdate(r, Fields{"time": "06:00"})
	require.NoError(t, err)
	assert.NoError(t, fixed.Check())
	assert.Equal(t, "bad", fixed.ID)
	assert.Equal(t, At(6, 0), fixed.Pump.At)
}

func TestRuleCloneIsDeep(t *testing.T) {
	end := At(10, 0)
	r := NewLightRule(At(8, 0), &end, 50)
	c := r.Clone()

	*c.Light.End = At(11, 0)
	c.Light.BrightnessPct = 99

	assert.Equal(t, At(10, 0), *r.Light.End)
	assert.Equal(t, 50, r.Light.BrightnessPct)
}
