// Package halts finds where a train stood still and aligns those positions
// with the stations of its corridor.
package halts

import (
	"sort"

	"github.com/jaynair0405/sub-spm/internal/spm"
)

// Detect returns the distinct cumulative distances of every zero-speed
// sample, sorted ascending. Duplicates are removed by exact distance, not by
// time adjacency: an instrument often logs several stationary rows at the
// same position.
func Detect(samples []spm.Sample) []float64 {
	seen := make(map[float64]struct{})
	out := []float64{}
	for _, s := range samples {
		if !s.IsHalt() {
			continue
		}
		if _, dup := seen[s.CumulativeDistance]; dup {
			continue
		}
		seen[s.CumulativeDistance] = struct{}{}
		out = append(out, s.CumulativeDistance)
	}
	sort.Float64s(out)
	return out
}
