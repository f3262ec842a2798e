package spm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_DropsInvalidRows(t *testing.T) {
	t.Parallel()

	raw := []RawSample{
		{Time: "10:00:00", Speed: "0", Distance: "0"},
		{Time: "10:00:01", Speed: "", Distance: "5"},     // missing speed
		{Time: "10:00:02", Speed: "abc", Distance: "5"},  // unparseable speed
		{Time: "", Speed: "10", Distance: "5"},           // missing time
		{Time: "10:00:04", Speed: "-3", Distance: "5"},   // negative speed
		{Time: "10:00:05", Speed: "12", Distance: "x1"},  // unparseable distance
		{Time: "10:00:06", Speed: "12", Distance: "3.5"}, // kept
		{Time: "10:00:07", Speed: "14", Distance: ""},    // empty distance counts as zero
	}

	run := Clean(raw)
	require.Equal(t, 3, run.Len())
	assert.Equal(t, 5, run.Dropped)
	assert.Equal(t, []int{0, 6, 7}, run.Source)
	assert.Equal(t, []float64{0, 3.5, 3.5}, run.Cumulative())
	assert.InDelta(t, 7.0, run.Samples[2].Timestamp, 1e-9)
}

func TestClean_ZeroSpeedZeroesDistance(t *testing.T) {
	t.Parallel()

	raw := []RawSample{
		{Time: "T+0s", Speed: "20", Distance: "5"},
		{Time: "T+1s", Speed: "0", Distance: "4"},
		{Time: "T+2s", Speed: "0", Distance: "2"},
		{Time: "T+3s", Speed: "10", Distance: "3"},
	}

	run := Clean(raw)
	require.Equal(t, 4, run.Len())
	assert.Equal(t, []float64{5, 5, 5, 8}, run.Cumulative())
	assert.Equal(t, 0.0, run.Samples[1].Distance)
	assert.True(t, run.Samples[1].IsHalt())
	assert.Equal(t, "4", raw[1].Distance, "raw input must be left untouched")
}

func TestClean_MidnightRollover(t *testing.T) {
	t.Parallel()

	raw := []RawSample{
		{Time: "23:59:58", Speed: "30", Distance: "8"},
		{Time: "23:59:59", Speed: "30", Distance: "8"},
		{Time: "00:00:00", Speed: "30", Distance: "8"},
		{Time: "00:00:01", Speed: "30", Distance: "8"},
	}

	run := Clean(raw)
	require.Equal(t, 4, run.Len())
	ts := make([]float64, run.Len())
	for i, s := range run.Samples {
		ts[i] = s.Timestamp
	}
	assert.Equal(t, []float64{0, 1, 2, 3}, ts)
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"10:00:05", 36005, true},
		{"10:01", 36060, true},
		{"T+42s", 42, true},
		{"12.5", 12.5, true},
		{"2024-03-01 01:00:00", 3600, true},
		{"noon", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := parseClock(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
