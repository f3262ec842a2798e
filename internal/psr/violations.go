package psr

import (
	"github.com/jaynair0405/sub-spm/internal/spm"
)

// Severity bands the amount by which a sample exceeded its limit.
type Severity string

const (
	Minor    Severity = "minor"
	Moderate Severity = "moderate"
	Severe   Severity = "severe"
	Critical Severity = "critical"
)

// SeverityOf bands an overspeed: under 5 km/h minor, under 10 moderate,
// under 20 severe, otherwise critical.
func SeverityOf(excess float64) Severity {
	switch {
	case excess < 5:
		return Minor
	case excess < 10:
		return Moderate
	case excess < 20:
		return Severe
	default:
		return Critical
	}
}

// Color is the chart colour used for a severity.
func (s Severity) Color() string {
	switch s {
	case Minor:
		return "#FFA500"
	case Moderate:
		return "#FF6B00"
	case Critical:
		return "#8B0000"
	default:
		return "#FF0000"
	}
}

// Violation is a single sample recorded above its permitted speed.
type Violation struct {
	Index      int      `json:"index"`
	LocationKM float64  `json:"location_km"`
	Speed      float64  `json:"speed_recorded"`
	Limit      float64  `json:"speed_limit"`
	Overspeed  float64  `json:"overspeed_amount"`
	Severity   Severity `json:"severity"`
}

// DetectViolations flags every sample whose speed exceeds a known limit.
// limits is parallel to samples; extra entries on either side are ignored.
func DetectViolations(samples []spm.Sample, limits []Limit) []Violation {
	var out []Violation
	for i := 0; i < len(samples) && i < len(limits); i++ {
		l := limits[i]
		if !l.OK || samples[i].Speed <= l.KMH {
			continue
		}
		excess := samples[i].Speed - l.KMH
		out = append(out, Violation{
			Index:      i,
			LocationKM: samples[i].CumulativeDistance,
			Speed:      samples[i].Speed,
			Limit:      l.KMH,
			Overspeed:  excess,
			Severity:   SeverityOf(excess),
		})
	}
	return out
}

// ViolationSummary counts violations per severity.
type ViolationSummary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Severe   int `json:"severe"`
	Moderate int `json:"moderate"`
	Minor    int `json:"minor"`
}

// Summarize counts vs by severity.
func Summarize(vs []Violation) ViolationSummary {
	s := ViolationSummary{Total: len(vs)}
	for _, v := range vs {
		switch v.Severity {
		case Critical:
			s.Critical++
		case Severe:
			s.Severe++
		case Moderate:
			s.Moderate++
		case Minor:
			s.Minor++
		}
	}
	return s
}
