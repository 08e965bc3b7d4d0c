package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/grow-controller/internal/schedule"
)

func sampleSnapshot(t *testing.T) Snapshot {
	t.Helper()
	end := schedule.At(17, 0)
	l := schedule.NewLightRule(schedule.At(9, 0), &end, 70)
	l.ID = "b-light"
	p := schedule.NewPumpRule(schedule.At(21, 30), 10)
	p.ID = "a-pump"
	p.Paused = true

	var broken schedule.Rule
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c-broken","type":"pump","time":"99:99","extra":true}`), &broken))

	until := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
	return Snapshot{
		Rules: []schedule.Rule{l, p, broken},
		Overrides: schedule.Overrides{
			PumpPausedUntil: &until,
			ManualPump:      &schedule.ManualRun{Since: until.Add(-time.Hour), Until: until},
		},
	}
}

func assertRoundTrip(t *testing.T, want, got Snapshot) {
	t.Helper()
	require.Len(t, got.Rules, len(want.Rules))
	for i := range want.Rules {
		wb, err := json.Marshal(want.Rules[i])
		require.NoError(t, err)
		gb, err := json.Marshal(got.Rules[i])
		require.NoError(t, err)
		assert.JSONEq(t, string(wb), string(gb))
	}
	assert.Error(t, got.Rules[2].Check(), "malformed rule stays malformed")

	require.NotNil(t, got.Overrides.PumpPausedUntil)
	assert.True(t, want.Overrides.PumpPausedUntil.Equal(*got.Overrides.PumpPausedUntil))
	assert.Nil(t, got.Overrides.LightPausedUntil)
	require.NotNil(t, got.Overrides.ManualPump)
	assert.True(t, want.Overrides.ManualPump.Until.Equal(got.Overrides.ManualPump.Until))
}

func TestJSONFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "rules.json")
	want := sampleSnapshot(t)

	require.NoError(t, NewJSONFile(path).Save(ctx, want))

	got, err := NewJSONFile(path).Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestJSONFileMissingIsEmpty(t *testing.T) {
	got, err := NewJSONFile(filepath.Join(t.TempDir(), "none.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Rules)
	assert.Nil(t, got.Overrides.LightPausedUntil)
}

func TestJSONFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewJSONFile(path).Load(context.Background())
	assert.Error(t, err)
}

func TestJSONFileKeepsNonObjectRules(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.json")
	stored := `{"rules":[{"id":"ok","type":"light","start_time":"06:00","end_time":"18:00","brightness_pct":70,"enabled":true,"paused":false},null,42]}`
	require.NoError(t, os.WriteFile(path, []byte(stored), 0o644))

	s, err := Open(ctx, NewJSONFile(path), Config{})
	require.NoError(t, err)
	defer s.Close()

	rules := s.List()
	require.Len(t, rules, 3)
	assert.NoError(t, rules[0].Check())
	assert.Error(t, rules[1].Check())
	assert.Error(t, rules[2].Check())

	res := schedule.Evaluate(rules, schedule.Overrides{}, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC), nil)
	assert.Equal(t, 70, res.Light.BrightnessPct)
	assert.Len(t, res.Skipped, 2)

	// Unrelated edits write the corrupt entries back untouched.
	p := schedule.NewPumpRule(schedule.At(7, 0), 5)
	_, err = s.Create(ctx, p)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Rules []json.RawMessage `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Len(t, doc.Rules, 4)
	assert.JSONEq(t, `null`, string(doc.Rules[1]))
	assert.JSONEq(t, `42`, string(doc.Rules[2]))
}

func TestSQLiteKeepsUndecodableRows(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	defer db.Close()

	ok := schedule.NewPumpRule(schedule.At(7, 0), 5)
	ok.ID = "ok"
	require.NoError(t, db.Save(ctx, Snapshot{Rules: []schedule.Rule{ok}}))
	for i, body := range []string{`null`, `{not json`} {
		_, err := db.db.ExecContext(ctx, `INSERT INTO rules (position, id, body) VALUES (?, ?, ?)`, i+1, "", body)
		require.NoError(t, err)
	}

	got, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Rules, 3)
	assert.Equal(t, "ok", got.Rules[0].ID)
	assert.NoError(t, got.Rules[0].Check())
	assert.Error(t, got.Rules[1].Check())
	assert.Error(t, got.Rules[2].Check())

	require.NoError(t, db.Save(ctx, got), "corrupt rows must not block saves")
}

func TestJSONFileLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.json")
	p := schedule.NewPumpRule(schedule.At(6, 0), 5)
	p.ID = "x"

	require.NoError(t, NewJSONFile(path).Save(ctx, Snapshot{Rules: []schedule.Rule{p}}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"rules": [{"id":"x","type":"pump","time":"06:00","duration_minutes":5,"enabled":true,"paused":false}],
		"light_rules_paused_until": null,
		"pump_rules_paused_until": null,
		"manual_pump": null
	}`, string(b))
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")
	want := sampleSnapshot(t)

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, db.Save(ctx, want))
	require.NoError(t, db.Close())

	db, err = OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Load(ctx)
	require.NoError(t, err)
	assertRoundTrip(t, want, got)
}

func TestSQLiteSaveReplacesRules(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Save(ctx, sampleSnapshot(t)))

	only := schedule.NewPumpRule(schedule.At(7, 0), 3)
	only.ID = "only"
	require.NoError(t, db.Save(ctx, Snapshot{Rules: []schedule.Rule{only}}))

	got, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "only", got.Rules[0].ID)
	assert.Nil(t, got.Overrides.PumpPausedUntil)
}

func TestStoreReloadsThroughBackends(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := OpenSQLite(filepath.Join(dir, "rules.db"))
	require.NoError(t, err)

	backends := map[string]func() Backend{
		"json":   func() Backend { return NewJSONFile(filepath.Join(dir, "rules.json")) },
		"sqlite": func() Backend { return sqlite },
	}
	defer sqlite.Close()

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s, err := Open(ctx, open(), Config{})
			require.NoError(t, err)

			var ids []string
			for _, pct := range []int{10, 20, 30} {
				r, err := s.Create(ctx, schedule.NewLightRule(schedule.At(8, 0), nil, pct))
				require.NoError(t, err)
				ids = append(ids, r.ID)
			}
			require.NoError(t, s.Delete(ctx, ids[0]))

			reloaded, err := Open(ctx, open(), Config{})
			require.NoError(t, err)
			rules := reloaded.List()
			require.Len(t, rules, 2)
			assert.Equal(t, ids[1], rules[0].ID)
			assert.Equal(t, ids[2], rules[1].ID)
			assert.Equal(t, 30, rules[1].Light.BrightnessPct)
		})
	}
}
