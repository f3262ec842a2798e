// Package psr maps a run onto permanent speed restrictions. Official station
// positions are rescaled into the run's own odometer coordinates, every
// sample position is expressed as a fraction of the segment it lies in, and
// that fraction is looked up in a percentage-based limit table.
package psr

import "math"

// EnhancedStation is a station position in the run's odometer coordinates.
type EnhancedStation struct {
	Name       string  `json:"name"`
	OfficialKM float64 `json:"official_km"`
	Actual     float64 `json:"actual_cum_dist"`
	Matched    bool    `json:"matched"`
}

// ScalingFactor is the ratio of odometer distance to official distance
// between the first and last ordered stations. It is 1 when the official
// distance is zero.
func ScalingFactor(ordered []string, km map[string]float64, start, end float64) float64 {
	if len(ordered) == 0 {
		return 1
	}
	official := math.Abs(km[ordered[len(ordered)-1]] - km[ordered[0]])
	if official == 0 {
		return 1
	}
	return (end - start) / official
}

// Rescale places every ordered station in run coordinates. Matched halts are
// used verbatim. Other stations are offset from the start station by their
// official distance, measured in the direction of travel and multiplied by a
// single scaling factor for the whole journey. Stations missing from km
// count as position zero.
func Rescale(ordered []string, km, halts map[string]float64, start, end float64) []EnhancedStation {
	if len(ordered) == 0 {
		return nil
	}

	startKM := km[ordered[0]]
	endKM := km[ordered[len(ordered)-1]]
	ascending := endKM >= startKM
	scale := ScalingFactor(ordered, km, start, end)

	startActual, ok := halts[ordered[0]]
	if !ok {
		startActual = start
	}

	out := make([]EnhancedStation, len(ordered))
	for i, name := range ordered {
		official := km[name]
		st := EnhancedStation{Name: name, OfficialKM: official}
		if d, ok := halts[name]; ok {
			st.Actual = d
			st.Matched = true
		} else {
			offset := official - startKM
			if !ascending {
				offset = startKM - official
			}
			st.Actual = startActual + offset*scale
		}
		out[i] = st
	}
	return out
}
