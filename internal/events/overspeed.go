// Package events scans a cleaned, PSR-annotated run for operational events:
// sustained overspeeding, platform entry speeds at each halt and the
// brake-feel test performed shortly after departure.
package events

import (
	"math"

	"github.com/jaynair0405/sub-spm/internal/psr"
	"github.com/jaynair0405/sub-spm/internal/spm"
)

const (
	DefaultOverspeedOffset      = 3.0
	DefaultOverspeedMinDuration = 7
	DefaultOverspeedDropPeek    = 3
)

// OverspeedOptions tunes overspeed grouping. Zero values take the defaults.
type OverspeedOptions struct {
	// Offset is added to the PSR before a sample counts as overspeeding.
	// Nil takes DefaultOverspeedOffset; zero is a valid offset.
	Offset *float64
	// MinDuration is the fewest over-threshold samples an event may have.
	MinDuration int
	// DropPeek is how many samples past a dip are checked for the speed
	// climbing back over the threshold.
	DropPeek int
}

func (o OverspeedOptions) withDefaults() OverspeedOptions {
	if o.Offset == nil {
		v := DefaultOverspeedOffset
		o.Offset = &v
	}
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultOverspeedMinDuration
	}
	if o.DropPeek <= 0 {
		o.DropPeek = DefaultOverspeedDropPeek
	}
	return o
}

// OverspeedEvent is a sustained run of samples above PSR plus offset.
type OverspeedEvent struct {
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	StartClock string  `json:"start_clock,omitempty"`
	EndClock   string  `json:"end_clock,omitempty"`
	StartKM    float64 `json:"start_km"`
	EndKM      float64 `json:"end_km"`
	Samples    int     `json:"samples"`
	MaxSpeed   float64 `json:"max_speed"`
	MaxExcess  float64 `json:"max_excess"`
	PSR        float64 `json:"psr"`
	Threshold  float64 `json:"threshold"`
}

// DetectOverspeed groups consecutive samples whose speed exceeds their own
// PSR plus offset. Runs shorter than MinDuration are discarded. A dip below
// the threshold is bridged when any of the next DropPeek samples is over it
// again. An event open at the end of the data is closed there. Samples with
// no known PSR never count as overspeeding.
func DetectOverspeed(samples []spm.Sample, limits []psr.Limit, opts OverspeedOptions) []OverspeedEvent {
	opts = opts.withDefaults()
	offset := *opts.Offset
	n := min(len(samples), len(limits))

	over := func(i int) bool {
		return limits[i].OK && samples[i].Speed > limits[i].KMH+offset
	}
	resumes := func(i int) (int, bool) {
		for k := 1; k <= opts.DropPeek && i+k < n; k++ {
			if over(i + k) {
				return i + k, true
			}
		}
		return 0, false
	}

	var (
		out []OverspeedEvent
		cur *OverspeedEvent
	)
	for i := 0; i < n; i++ {
		if over(i) {
			if cur == nil {
				cur = openEvent(samples[i], limits[i].KMH, offset, i)
			} else {
				extendEvent(cur, samples[i], limits[i].KMH, i)
			}
			continue
		}
		if cur == nil {
			continue
		}
		if cur.Samples < opts.MinDuration {
			cur = nil
			continue
		}
		if next, ok := resumes(i); ok {
			i = next - 1
			continue
		}
		out = append(out, *cur)
		cur = nil
	}
	if cur != nil && cur.Samples >= opts.MinDuration {
		out = append(out, *cur)
	}
	return out
}

func openEvent(s spm.Sample, limit, offset float64, i int) *OverspeedEvent {
	return &OverspeedEvent{
		StartIndex: i,
		EndIndex:   i,
		StartTime:  s.Timestamp,
		EndTime:    s.Timestamp,
		StartClock: s.Time,
		EndClock:   s.Time,
		StartKM:    s.CumulativeDistance,
		EndKM:      s.CumulativeDistance,
		Samples:    1,
		MaxSpeed:   s.Speed,
		MaxExcess:  s.Speed - limit,
		PSR:        limit,
		Threshold:  limit + offset,
	}
}

func extendEvent(e *OverspeedEvent, s spm.Sample, limit float64, i int) {
	e.EndIndex = i
	e.EndTime = s.Timestamp
	e.EndClock = s.Time
	e.EndKM = s.CumulativeDistance
	e.Samples++
	e.MaxSpeed = math.Max(e.MaxSpeed, s.Speed)
	e.MaxExcess = math.Max(e.MaxExcess, s.Speed-limit)
}
