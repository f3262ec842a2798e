package analysis

import (
	"math"
	"sort"
)

// StationMarker places a station on the run's sample axis for charting.
type StationMarker struct {
	Station     string   `json:"station"`
	Distance    float64  `json:"distance"`
	SampleIndex int      `json:"sample_index"`
	EntrySpeed  *float64 `json:"platform_entry_speed"`
}

// stationMarkers returns one marker per matched station, nearest sample
// first, sorted by distance. The journey's first station is always present;
// when no halt was matched there it sits at the first sample with entry
// speed zero.
func stationMarkers(res *Result) []StationMarker {
	if len(res.Samples) == 0 {
		return nil
	}
	entry := make(map[string]float64, len(res.PlatformEntries))
	for _, p := range res.PlatformEntries {
		entry[p.Station] = p.EntrySpeed
	}

	out := make([]StationMarker, 0, len(res.Stations)+1)
	for st, d := range res.Stations {
		m := StationMarker{Station: st, Distance: d, SampleIndex: nearestSample(res, d)}
		if v, ok := entry[st]; ok {
			m.EntrySpeed = &v
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Station < out[j].Station
	})

	first := res.From
	if first == "" && len(res.Ordered) > 0 {
		first = res.Ordered[0]
	}
	if first == "" {
		return out
	}
	if _, ok := res.Stations[first]; !ok {
		zero := 0.0
		out = append([]StationMarker{{
			Station:    first,
			Distance:   res.Samples[0].CumulativeDistance,
			EntrySpeed: &zero,
		}}, out...)
	}
	return out
}

func nearestSample(res *Result, d float64) int {
	best, bestDiff := 0, math.Inf(1)
	for i, s := range res.Samples {
		if diff := math.Abs(s.CumulativeDistance - d); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}
