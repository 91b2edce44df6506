package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockFormats(t *testing.T) {
	cases := map[string]Clock{
		"08:00":    8 * 60,
		"8.30":     8*60 + 30,
		"8:00 AM":  8 * 60,
		"9.00 PM":  21 * 60,
		"12:15 am": 15,
		"12:45 PM": 12*60 + 45,
		"24:00":    24 * 60,
	}
	for raw, want := range cases {
		got, err := ParseClock(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "noon", "25:00", "10:75", "13:00 PM", ":30", "10:"} {
		_, err := ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestParseWeekday(t *testing.T) {
	day, err := ParseWeekday("wednesday")
	require.NoError(t, err)
	assert.Equal(t, Wednesday, day)

	day, err = ParseWeekday(" Sat ")
	require.NoError(t, err)
	assert.Equal(t, Saturday, day)
	assert.True(t, day.Weekend())

	_, err = ParseWeekday("Funday")
	assert.Error(t, err)
}

func TestClockAndWeekdayJSON(t *testing.T) {
	payload, err := json.Marshal(Interval{Day: Friday, Start: 13*60 + 30, End: 15 * 60})
	require.NoError(t, err)
	assert.JSONEq(t, `{"day":"FRIDAY","start":"13:30","end":"15:00"}`, string(payload))

	var decoded Interval
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, Friday, decoded.Day)
	assert.Equal(t, Clock(13*60+30), decoded.Start)
}
