package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		str     string
		wantErr bool
	}{
		{in: "9:30", want: 570, str: "09:30"},
		{in: "09:30", want: 570, str: "09:30"},
		{in: "0:00", want: 0, str: "00:00"},
		{in: "23:59", want: 1439, str: "23:59"},
		{in: " 7:05 ", want: 425, str: "07:05"},
		{in: "12:00", want: 720, str: "12:00"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "9:5", wantErr: true},
		{in: "123:00", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "9.30", wantErr: true},
		{in: "9:30:00", wantErr: true},
		{in: "", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, Invalid, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.str, got.String())
		})
	}
}

func TestParseTimeOfDayAllMinutesRoundTrip(t *testing.T) {
	for m := 0; m < MinutesPerDay; m++ {
		tod := TimeOfDay(m)
		short := tod.String()
		if tod.Hour() < 10 {
			short = short[1:]
		}
		got, err := ParseTimeOfDay(short)
		require.NoError(t, err, short)
		require.Equal(t, tod, got, short)
	}
}

func TestTimeOfDayArithmetic(t *testing.T) {
	assert.Equal(t, TimeOfDay(5), At(23, 55).Add(10))
	assert.Equal(t, At(23, 50), At(0, 10).Add(-20))
	assert.Equal(t, 15, At(23, 50).Until(At(0, 5)))
	assert.Equal(t, 0, At(8, 0).Until(At(8, 0)))
	assert.Equal(t, Invalid, At(24, 0))
	assert.Equal(t, "invalid", Invalid.String())
}

func TestOf(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	assert.Equal(t, At(21, 15), Of(time.Date(2026, 5, 1, 21, 15, 42, 0, loc)))
}

func TestTimeOfDayText(t *testing.T) {
	var v struct {
		At TimeOfDay `json:"at"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"at":"6:45"}`), &v))
	assert.Equal(t, At(6, 45), v.At)

	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"at":"06:45"}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"at":"25:00"}`), &v))
}
