package units

import (
	"math"
	"testing"
)

func TestSpeedUnitFromKMPH(t *testing.T) {
	tests := []struct {
		name      string
		speedKmph float64
		unit      SpeedUnit
		expected  float64
	}{
		{"36 km/h to mps", 36.0, MPS, 10.0},
		{"100 km/h to mph", 100.0, MPH, 62.1371},
		{"kmph passthrough", 72.5, KMPH, 72.5},
		{"unknown unit stays kmph", 50.0, SpeedUnit("knots"), 50.0},
		{"zero", 0.0, MPS, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.unit.FromKMPH(tt.speedKmph)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("%s.FromKMPH(%f) = %f, want %f", tt.unit, tt.speedKmph, result, tt.expected)
			}
		})
	}
}

func TestParseSpeedUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    SpeedUnit
		wantErr bool
	}{
		{"", KMPH, false},
		{"kmph", KMPH, false},
		{"KPH", KMPH, false},
		{"km/h", KMPH, false},
		{" mps ", MPS, false},
		{"MPH", MPH, false},
		{"knots", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSpeedUnit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSpeedUnit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSpeedUnit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSpeedUnitLabel(t *testing.T) {
	for u, want := range map[SpeedUnit]string{KMPH: "km/h", MPS: "m/s", MPH: "mph"} {
		if got := u.Label(); got != want {
			t.Errorf("%s.Label() = %q, want %q", u, got, want)
		}
	}
}

func TestDetectScale(t *testing.T) {
	tests := []struct {
		name   string
		values [][]float64
		want   DistanceScale
	}{
		{"empty is kilometers", nil, Kilometers},
		{"short corridor in km", [][]float64{{0, 4.12, 9.02}}, Kilometers},
		{"exactly 100 stays km", [][]float64{{100}}, Kilometers},
		{"meters", [][]float64{{0, 4120, 9020}}, Meters},
		{"negative magnitude counts", [][]float64{{-250}}, Meters},
		{"any slice can decide", [][]float64{{1, 2}, {}, {500}}, Meters},
		{"NaN ignored", [][]float64{{math.NaN(), 3}}, Kilometers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectScale(tt.values...); got != tt.want {
				t.Errorf("DetectScale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDistanceScaleZeroValueIsMeters(t *testing.T) {
	var s DistanceScale
	if s != Meters {
		t.Errorf("zero DistanceScale = %v, want meters", s)
	}
	if got := s.ToMeters(4120); got != 4120 {
		t.Errorf("zero DistanceScale.ToMeters(4120) = %f, want 4120", got)
	}
}

func TestDistanceScaleConversions(t *testing.T) {
	if got := Meters.FromMeters(130); got != 130 {
		t.Errorf("Meters.FromMeters(130) = %f", got)
	}
	if got := Kilometers.FromMeters(130); math.Abs(got-0.13) > 1e-12 {
		t.Errorf("Kilometers.FromMeters(130) = %f", got)
	}
	if got := Kilometers.ToMeters(0.268); math.Abs(got-268) > 1e-9 {
		t.Errorf("Kilometers.ToMeters(0.268) = %f", got)
	}
	if got := Meters.ToKilometers(9020); math.Abs(got-9.02) > 1e-12 {
		t.Errorf("Meters.ToKilometers(9020) = %f", got)
	}
	if got := Meters.FromKilometers(0.264); math.Abs(got-264) > 1e-9 {
		t.Errorf("Meters.FromKilometers(0.264) = %f", got)
	}
	if Meters.String() != "m" || Kilometers.String() != "km" {
		t.Errorf("unexpected String() values")
	}
}
