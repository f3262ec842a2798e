// Package spm models Speed-Position-Measurement telemetry: raw log rows, the
// cleaned sample series every analysis stage consumes, and the segment
// trimming applied once halts have been matched to stations.
package spm

import (
	"github.com/jaynair0405/sub-spm/internal/units"
)

// RawSample is one row of an SPM log as read from disk, before any parsing.
type RawSample struct {
	Date     string
	Time     string
	Speed    string
	Distance string
}

// Sample is one cleaned telemetry reading.
type Sample struct {
	Date               string  `json:"date,omitempty"`
	Time               string  `json:"time,omitempty"`
	Timestamp          float64 `json:"timestamp"` // seconds since the first sample
	Speed              float64 `json:"speed"`     // km/h
	Distance           float64 `json:"distance"`  // delta since previous sample
	CumulativeDistance float64 `json:"cumulative_distance"`
}

// IsHalt reports whether the sample was recorded while stationary.
func (s Sample) IsHalt() bool {
	return s.Speed == 0
}

// Run is an ordered, cleaned sample series. Source maps each sample back to
// its row in the raw input. A Run is not modified after construction; the
// helpers below always return new values.
type Run struct {
	Samples []Sample
	Source  []int
	Dropped int
}

// Len returns the number of cleaned samples.
func (r *Run) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Samples)
}

// Speeds returns the speed series.
func (r *Run) Speeds() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.Speed
	}
	return out
}

// Cumulative returns the cumulative distance series.
func (r *Run) Cumulative() []float64 {
	out := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		out[i] = s.CumulativeDistance
	}
	return out
}

// Scale detects the run's distance unit from its cumulative distances.
func (r *Run) Scale() units.DistanceScale {
	return units.DetectScale(r.Cumulative())
}

// Bounds returns the first and last cumulative distance.
func (r *Run) Bounds() (start, end float64) {
	if r.Len() == 0 {
		return 0, 0
	}
	return r.Samples[0].CumulativeDistance, r.Samples[len(r.Samples)-1].CumulativeDistance
}

// Segment keeps the samples whose cumulative distance is at least start and,
// when clipEnd is set, at most end. Cumulative distances in the result are
// rebased so that start becomes 0.
func (r *Run) Segment(start, end float64, clipEnd bool) *Run {
	out := &Run{Dropped: r.Dropped}
	for i, s := range r.Samples {
		if s.CumulativeDistance < start {
			continue
		}
		if clipEnd && s.CumulativeDistance > end {
			continue
		}
		s.CumulativeDistance -= start
		out.Samples = append(out.Samples, s)
		if i < len(r.Source) {
			out.Source = append(out.Source, r.Source[i])
		} else {
			out.Source = append(out.Source, i)
		}
	}
	return out
}

// FromSeries builds a Run from parallel speed and distance-delta series with
// one-second timestamps. Speed zero forces the delta to zero, as in Clean.
func FromSeries(speeds, deltas []float64) *Run {
	run := &Run{
		Samples: make([]Sample, len(speeds)),
		Source:  make([]int, len(speeds)),
	}
	cum := 0.0
	for i, v := range speeds {
		d := 0.0
		if i < len(deltas) {
			d = deltas[i]
		}
		if v == 0 {
			d = 0
		}
		cum += d
		run.Samples[i] = Sample{
			Timestamp:          float64(i),
			Speed:              v,
			Distance:           d,
			CumulativeDistance: cum,
		}
		run.Source[i] = i
	}
	return run
}
