package psr

import (
	"github.com/jaynair0405/sub-spm/internal/spm"
)

// NormalizePosition finds the enhanced-station pair bracketing d, with
// stations[i].Actual <= d < stations[i+1].Actual, and returns d as a fraction
// of that segment. A zero-length segment yields 0. Positions at or past the
// last station fall in the final segment at 1.0. Positions before the first
// station, or in a gap no bracket covers, are not found.
func NormalizePosition(d float64, stations []EnhancedStation) (Position, bool) {
	if len(stations) < 2 {
		return Position{}, false
	}
	for i := 0; i < len(stations)-1; i++ {
		cur, next := stations[i], stations[i+1]
		if cur.Actual <= d && d < next.Actual {
			pct := 0.0
			if length := next.Actual - cur.Actual; length != 0 {
				pct = (d - cur.Actual) / length
			}
			return Position{Segment: cur.Name + "-" + next.Name, Percentage: pct}, true
		}
	}
	last := len(stations) - 1
	if d >= stations[last].Actual {
		return Position{Segment: stations[last-1].Name + "-" + stations[last].Name, Percentage: 1}, true
	}
	return Position{}, false
}

// ProcessTrainSpeedLimits returns the permitted speed at every sample, in
// sample order. Stations are rescaled between the first and last sample's
// cumulative distance. km and halts must share the samples' distance scale.
func ProcessTrainSpeedLimits(samples []spm.Sample, ordered []string, km, halts map[string]float64, table *Table) []Limit {
	if len(samples) == 0 {
		return nil
	}
	start := samples[0].CumulativeDistance
	end := samples[len(samples)-1].CumulativeDistance
	return Series(samples, Rescale(ordered, km, halts, start, end), table)
}

// Series maps every sample through NormalizePosition and SpeedLimit.
func Series(samples []spm.Sample, stations []EnhancedStation, table *Table) []Limit {
	out := make([]Limit, len(samples))
	for i, s := range samples {
		if pos, ok := NormalizePosition(s.CumulativeDistance, stations); ok {
			out[i] = SpeedLimit(pos, table)
		}
	}
	return out
}
