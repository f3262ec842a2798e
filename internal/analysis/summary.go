package analysis

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/units"
)

// Summary holds run-level statistics. Speeds are km/h; TotalDistance is in
// the run's scale.
type Summary struct {
	Rows            int     `json:"row_count"`
	Dropped         int     `json:"dropped_rows"`
	MaxSpeed        float64 `json:"max_speed"`
	AvgSpeed        float64 `json:"avg_speed"`
	MovingAvgSpeed  float64 `json:"moving_avg_speed"`
	P85Speed        float64 `json:"p85_speed"`
	SpeedStdDev     float64 `json:"speed_stddev"`
	TotalDistance   float64 `json:"total_distance"`
	TotalDistanceKM float64 `json:"total_distance_km"`
	Duration        float64 `json:"duration_s"`
	HaltCount       int     `json:"halts_detected"`
	MatchedHalts    int     `json:"halts_matched"`
	PSRCalculated   bool    `json:"psr_calculated"`
}

// Summarize computes speed and distance statistics over a run. The 85th
// percentile and moving average only consider samples in motion.
func Summarize(run *spm.Run, scale units.DistanceScale) Summary {
	if run.Len() == 0 {
		return Summary{}
	}
	s := Summary{Rows: run.Len(), Dropped: run.Dropped}

	speeds := run.Speeds()
	deltas := make([]float64, len(run.Samples))
	var moving []float64
	for i, smp := range run.Samples {
		deltas[i] = smp.Distance
		if smp.Speed > 0 {
			moving = append(moving, smp.Speed)
		}
	}

	s.MaxSpeed = floats.Max(speeds)
	s.AvgSpeed = stat.Mean(speeds, nil)
	s.SpeedStdDev = stat.StdDev(speeds, nil)
	if len(moving) > 0 {
		sort.Float64s(moving)
		s.MovingAvgSpeed = stat.Mean(moving, nil)
		s.P85Speed = stat.Quantile(0.85, stat.Empirical, moving, nil)
	}
	s.TotalDistance = floats.Sum(deltas)
	s.TotalDistanceKM = scale.ToKilometers(s.TotalDistance)

	first, last := run.Samples[0], run.Samples[len(run.Samples)-1]
	s.Duration = last.Timestamp - first.Timestamp
	return s
}
