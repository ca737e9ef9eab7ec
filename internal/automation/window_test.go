package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    TimeOfDay
		wantErr assert.ErrorAssertionFunc
	}{
		{name: "valid", input: "22:30", want: TimeOfDay{Hour: 22, Minute: 30}, wantErr: assert.NoError},
		{name: "midnight", input: "00:00", want: TimeOfDay{}, wantErr: assert.NoError},
		{name: "hour out of range", input: "24:00", wantErr: assert.Error},
		{name: "minute out of range", input: "10:60", wantErr: assert.Error},
		{name: "garbage", input: "not a time", wantErr: assert.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			tt.wantErr(t, err)
			if err == nil {
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.input, got.String())
			}
		})
	}
}

func TestTimeWindow_Contains(t *testing.T) {
	at := func(hour, minute int) time.Time {
		return time.Date(2026, time.September, 1, hour, minute, 0, 0, time.UTC)
	}
	tod := func(hour, minute int) *TimeOfDay {
		return &TimeOfDay{Hour: hour, Minute: minute}
	}

	tests := []struct {
		name   string
		window TimeWindow
		now    time.Time
		want   bool
	}{
		{name: "no bounds", window: TimeWindow{}, now: at(3, 0), want: true},
		{name: "start only", window: TimeWindow{Start: tod(9, 0)}, now: at(3, 0), want: true},
		{name: "end only", window: TimeWindow{End: tod(17, 0)}, now: at(23, 0), want: true},
		{name: "inside", window: TimeWindow{Start: tod(9, 0), End: tod(17, 0)}, now: at(12, 0), want: true},
		{name: "on start bound", window: TimeWindow{Start: tod(9, 0), End: tod(17, 0)}, now: at(9, 0), want: true},
		{name: "on end bound", window: TimeWindow{Start: tod(9, 0), End: tod(17, 0)}, now: at(17, 0), want: true},
		{name: "before", window: TimeWindow{Start: tod(9, 0), End: tod(17, 0)}, now: at(8, 59), want: false},
		{name: "after", window: TimeWindow{Start: tod(9, 0), End: tod(17, 0)}, now: at(17, 1), want: false},
		{name: "overnight evening side", window: TimeWindow{Start: tod(22, 0), End: tod(6, 0)}, now: at(23, 30), want: true},
		{name: "overnight morning side", window: TimeWindow{Start: tod(22, 0), End: tod(6, 0)}, now: at(5, 30), want: true},
		{name: "overnight outside", window: TimeWindow{Start: tod(22, 0), End: tod(6, 0)}, now: at(12, 0), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.now))
		})
	}
}

func TestTimeOfDay_Text(t *testing.T) {
	var tod TimeOfDay
	require.NoError(t, tod.UnmarshalText([]byte("07:05")))
	assert.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)

	out, err := tod.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "07:05", string(out))
}
