package units

import "math"

// meterScaleThreshold is the largest distance value that is still read as
// kilometers. Suburban corridors are shorter than 100 km, so anything larger
// must be meters.
const meterScaleThreshold = 100.0

// DistanceScale records whether a run's distances are meters or kilometers.
// It is determined once per run and passed to every stage that does offset
// arithmetic. The zero value is Meters.
type DistanceScale int

const (
	Meters DistanceScale = iota
	Kilometers
)

// DetectScale reports Meters when any absolute value exceeds 100, otherwise
// Kilometers. An empty input is treated as kilometers.
func DetectScale(values ...[]float64) DistanceScale {
	maxAbs := 0.0
	for _, vs := range values {
		for _, v := range vs {
			if math.IsNaN(v) {
				continue
			}
			if a := math.Abs(v); a > maxAbs {
				maxAbs = a
			}
		}
	}
	if maxAbs > meterScaleThreshold {
		return Meters
	}
	return Kilometers
}

func (s DistanceScale) String() string {
	if s == Meters {
		return "m"
	}
	return "km"
}

// FromMeters converts a length in meters into this scale.
func (s DistanceScale) FromMeters(m float64) float64 {
	if s == Meters {
		return m
	}
	return m / 1000.0
}

// ToMeters converts a value in this scale into meters.
func (s DistanceScale) ToMeters(v float64) float64 {
	if s == Meters {
		return v
	}
	return v * 1000.0
}

// ToKilometers converts a value in this scale into kilometers.
func (s DistanceScale) ToKilometers(v float64) float64 {
	if s == Meters {
		return v / 1000.0
	}
	return v
}

// FromKilometers converts a length in kilometers into this scale.
func (s DistanceScale) FromKilometers(km float64) float64 {
	if s == Meters {
		return km * 1000.0
	}
	return km
}
