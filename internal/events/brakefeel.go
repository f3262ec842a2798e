package events

import (
	"math"

	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/units"
)

// Brake-feel defaults.
const (
	DefaultBrakeFeelMinSpeed       = 15.0
	DefaultBrakeFeelMaxSpeed       = 40.0
	DefaultBrakeFeelMinSpeedDrop   = 5.0
	DefaultBrakeFeelMaxVariation   = 3.0
	DefaultBrakeFeelStabilization  = 5
	DefaultBrakeFeelNoiseTolerance = 3
)

const (
	// peakDropKMH is how far speed must fall below the running peak before
	// the peak is taken as the braking point. The trough ends when speed
	// rises by the same amount.
	peakDropKMH = 2.0

	brakingWindow       = 30
	minBrakingSamples   = 3
	haltSearchWindow    = 10
	recoveryWindow      = 40
	reaccelerationKMH   = 5.0
	startSearchWindow   = 30
	scanTailSamples     = 20
	brakingTailSamples  = 15
	firstHaltMinMeters  = 700.0
	minAnalysisPadding  = 10
	analysisPaddingPlus = 5
)

// BrakeFeelOptions tunes the detector. Zero values take the defaults.
type BrakeFeelOptions struct {
	MinSpeed          float64 // lowest speed a test may start from
	MaxSpeed          float64 // once exceeded, the test window has passed
	MinSpeedDrop      float64
	MaxSpeedVariation float64 // tolerance while holding the trough speed
	// StabilizationPeriod is how many samples the trough speed must hold.
	StabilizationPeriod int
	NoiseTolerance      int
	// Scale is the run's distance scale, used to find the first halt.
	Scale units.DistanceScale
}

func (o BrakeFeelOptions) withDefaults() BrakeFeelOptions {
	if o.MinSpeed <= 0 {
		o.MinSpeed = DefaultBrakeFeelMinSpeed
	}
	if o.MaxSpeed <= 0 {
		o.MaxSpeed = DefaultBrakeFeelMaxSpeed
	}
	if o.MinSpeedDrop <= 0 {
		o.MinSpeedDrop = DefaultBrakeFeelMinSpeedDrop
	}
	if o.MaxSpeedVariation <= 0 {
		o.MaxSpeedVariation = DefaultBrakeFeelMaxVariation
	}
	if o.StabilizationPeriod <= 0 {
		o.StabilizationPeriod = DefaultBrakeFeelStabilization
	}
	if o.NoiseTolerance < 0 {
		o.NoiseTolerance = 0
	}
	return o
}

// BrakeFeelTest describes a detected brake-feel test. Indexes refer to the
// input samples.
type BrakeFeelTest struct {
	StartIndex        int     `json:"start_index"`
	EndIndex          int     `json:"end_index"`
	MaxSpeedIndex     int     `json:"max_speed_index"`
	BrakingStartIndex int     `json:"braking_start_index"`
	LowestSpeedIndex  int     `json:"lowest_speed_index"`
	RecoveryIndex     int     `json:"recovery_index"`
	StartSpeed        float64 `json:"start_speed"`
	MaxSpeed          float64 `json:"max_speed"`
	BrakingStartSpeed float64 `json:"braking_start_speed"`
	LowestSpeed       float64 `json:"lowest_speed"`
	RecoverySpeed     float64 `json:"recovery_speed"`
	SpeedDrop         float64 `json:"speed_drop"`
	Duration          float64 `json:"duration"` // seconds
	BrakingKM         float64 `json:"braking_km"`
	Halted            bool    `json:"halted"`
}

// DetectBrakeFeel finds the first brake-feel test of a run. The scan covers
// the run up to shortly after its first halt away from the origin. From a
// sample between MinSpeed and MaxSpeed it follows the speed up to its peak,
// then down to the trough. A drop of at least MinSpeedDrop spread over three
// or more samples is a test if the train then either holds the trough speed,
// reaccelerates, or stops. Exceeding MaxSpeed before a test is found ends the
// search, so a run whose peak is above the ceiling yields nothing: a brake
// from 45 km/h is only found with MaxSpeed raised above 45, not with the
// default 40. At most one test is returned.
func DetectBrakeFeel(samples []spm.Sample, opts BrakeFeelOptions) []BrakeFeelTest {
	opts = opts.withDefaults()
	if len(samples) == 0 {
		return nil
	}
	end := analysisEnd(samples, opts)
	speeds := make([]float64, end)
	for i := range speeds {
		speeds[i] = samples[i].Speed
	}
	n := len(speeds)

	for i := 0; i < n-scanTailSamples; i++ {
		if speeds[i] < opts.MinSpeed {
			continue
		}
		if speeds[i] > opts.MaxSpeed {
			break
		}

		peak, peakIdx, dropStart, ok := followPeak(speeds, i, opts.MaxSpeed)
		if !ok {
			continue
		}

		lowest, lowIdx := speeds[dropStart], dropStart
		for j := dropStart; j < min(dropStart+brakingWindow, n); j++ {
			if speeds[j] < lowest {
				lowest, lowIdx = speeds[j], j
			} else if speeds[j] > lowest+peakDropKMH {
				break
			}
		}

		drop := peak - lowest
		if drop < opts.MinSpeedDrop || lowIdx-peakIdx < minBrakingSamples {
			continue
		}

		endIdx, recoverySpeed, recovered := recovery(speeds, lowIdx, lowest, opts)
		halted := false
		if !recovered {
			for j := lowIdx; j < min(lowIdx+haltSearchWindow, n); j++ {
				if speeds[j] == 0 {
					endIdx, recoverySpeed, halted = j, 0, true
					break
				}
			}
		}
		if !recovered && !halted {
			i = lowIdx
			continue
		}

		start := peakIdx
		for j := peakIdx - 1; j > max(-1, peakIdx-startSearchWindow); j-- {
			if speeds[j] < speeds[start] {
				start = j
			}
			if speeds[j] <= 0 {
				break
			}
		}

		return []BrakeFeelTest{{
			StartIndex:        start,
			EndIndex:          endIdx,
			MaxSpeedIndex:     peakIdx,
			BrakingStartIndex: peakIdx,
			LowestSpeedIndex:  lowIdx,
			RecoveryIndex:     endIdx,
			StartSpeed:        speeds[start],
			MaxSpeed:          peak,
			BrakingStartSpeed: peak,
			LowestSpeed:       lowest,
			RecoverySpeed:     recoverySpeed,
			SpeedDrop:         drop,
			Duration:          samples[endIdx].Timestamp - samples[start].Timestamp,
			BrakingKM:         opts.Scale.ToKilometers(samples[peakIdx].CumulativeDistance),
			Halted:            halted,
		}}
	}
	return nil
}

// followPeak tracks the running maximum from i until speed falls more than
// peakDropKMH below it. It fails when the ceiling is crossed first or the
// data runs out.
func followPeak(speeds []float64, i int, ceiling float64) (peak float64, peakIdx, dropStart int, ok bool) {
	peak, peakIdx = speeds[i], i
	for j := i; j < len(speeds)-brakingTailSamples; j++ {
		switch {
		case speeds[j] > ceiling:
			return 0, 0, 0, false
		case speeds[j] > peak:
			peak, peakIdx = speeds[j], j
		case speeds[j] < peak-peakDropKMH:
			return peak, peakIdx, j, true
		}
	}
	return 0, 0, 0, false
}

// recovery looks for the trough speed being held for the stabilisation
// period, or for clear reacceleration.
func recovery(speeds []float64, from int, base float64, opts BrakeFeelOptions) (int, float64, bool) {
	held := 0
	for j := from; j < len(speeds) && j-from < recoveryWindow; j++ {
		switch v := speeds[j]; {
		case math.Abs(v-base) <= opts.MaxSpeedVariation:
			held++
			if held >= opts.StabilizationPeriod {
				return j, v, true
			}
		case v > base+reaccelerationKMH:
			return j, v, true
		default:
			held = max(0, held-1)
		}
	}
	return 0, 0, false
}

// analysisEnd cuts the run a few samples after its first halt beyond
// 700 m, where the brake-feel test must already have happened.
func analysisEnd(samples []spm.Sample, opts BrakeFeelOptions) int {
	padding := max(minAnalysisPadding, opts.NoiseTolerance+opts.StabilizationPeriod+analysisPaddingPlus)
	threshold := opts.Scale.FromMeters(firstHaltMinMeters)
	for i, s := range samples {
		if s.Speed == 0 && s.Distance == 0 && s.CumulativeDistance >= threshold {
			return min(len(samples), i+1+padding)
		}
	}
	return len(samples)
}
