// Package units holds the unit conventions shared by the SPM analysis
// packages: speeds in km/h and distances in either meters or kilometers.
package units

import (
	"fmt"
	"strings"
)

// SpeedUnit is a unit speeds can be reported in. SPM recorders log km/h.
type SpeedUnit string

const (
	KMPH SpeedUnit = "kmph"
	MPS  SpeedUnit = "mps"
	MPH  SpeedUnit = "mph"
)

// ValidSpeedUnits lists the accepted SpeedUnit values.
var ValidSpeedUnits = []SpeedUnit{KMPH, MPS, MPH}

// ParseSpeedUnit accepts a SpeedUnit name case-insensitively. "kph" and
// "km/h" are taken as KMPH.
func ParseSpeedUnit(s string) (SpeedUnit, error) {
	switch u := SpeedUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case KMPH, "kph", "km/h", "":
		return KMPH, nil
	case MPS, MPH:
		return u, nil
	}
	return "", fmt.Errorf("invalid speed unit %q, want one of %v", s, ValidSpeedUnits)
}

// FromKMPH converts a recorder speed in km/h to u.
func (u SpeedUnit) FromKMPH(kmph float64) float64 {
	switch u {
	case MPS:
		return kmph / 3.6
	case MPH:
		return kmph * 0.621371
	default:
		return kmph
	}
}

// Label is the unit as printed after a value.
func (u SpeedUnit) Label() string {
	switch u {
	case MPS:
		return "m/s"
	case MPH:
		return "mph"
	default:
		return "km/h"
	}
}
