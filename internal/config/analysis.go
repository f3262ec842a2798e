package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// AnalysisConfig holds the tunables of the analysis pipeline. Every field is
// optional; the Get* accessors fall back to the built-in defaults, so partial
// configs are safe. Distances are meters and speeds km/h.
type AnalysisConfig struct {
	// Halt matching
	MaxISDDiff         *float64 `json:"max_isd_diff,omitempty"`
	MaxISDDiffFast     *float64 `json:"max_isd_diff_fast,omitempty"`
	AnchorTolerance    *float64 `json:"anchor_tolerance_m,omitempty"`
	SpanToleranceRatio *float64 `json:"span_tolerance_ratio,omitempty"`
	SpanToleranceMin   *float64 `json:"span_tolerance_min_m,omitempty"`
	LookaheadStations  *int     `json:"lookahead_stations,omitempty"`
	ForwardCorrection  *float64 `json:"forward_correction_m,omitempty"`

	// Overspeed grouping
	OverspeedOffset      *float64 `json:"overspeed_offset_kmh,omitempty"`
	OverspeedMinDuration *int     `json:"overspeed_min_duration,omitempty"`
	OverspeedDropPeek    *int     `json:"overspeed_drop_peek,omitempty"`

	// Platform entry
	MidPlatformOffset *float64 `json:"mid_platform_offset_m,omitempty"`
	OneCoachOffset    *float64 `json:"one_coach_offset_m,omitempty"`

	BrakeFeel *BrakeFeelConfig `json:"brake_feel,omitempty"`

	// Batch analysis
	Workers *int `json:"workers,omitempty"`
}

// BrakeFeelConfig tunes brake-feel test detection.
type BrakeFeelConfig struct {
	MinSpeed            *float64 `json:"min_speed,omitempty"`
	MaxSpeed            *float64 `json:"max_speed,omitempty"`
	MinSpeedDrop        *float64 `json:"min_speed_drop,omitempty"`
	MaxSpeedVariation   *float64 `json:"max_speed_variation,omitempty"`
	StabilizationPeriod *int     `json:"stabilization_period,omitempty"`
	NoiseTolerance      *int     `json:"noise_tolerance,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field populated from the
// built-in defaults.
func DefaultAnalysisConfig() *AnalysisConfig {
	e := EmptyAnalysisConfig()
	b := e.brakeFeel()
	return &AnalysisConfig{
		MaxISDDiff:           ptrFloat64(e.GetMaxISDDiff()),
		MaxISDDiffFast:       ptrFloat64(e.GetMaxISDDiffFast()),
		AnchorTolerance:      ptrFloat64(e.GetAnchorTolerance()),
		SpanToleranceRatio:   ptrFloat64(e.GetSpanToleranceRatio()),
		SpanToleranceMin:     ptrFloat64(e.GetSpanToleranceMin()),
		LookaheadStations:    ptrInt(e.GetLookaheadStations()),
		ForwardCorrection:    ptrFloat64(e.GetForwardCorrection()),
		OverspeedOffset:      ptrFloat64(e.GetOverspeedOffset()),
		OverspeedMinDuration: ptrInt(e.GetOverspeedMinDuration()),
		OverspeedDropPeek:    ptrInt(e.GetOverspeedDropPeek()),
		MidPlatformOffset:    ptrFloat64(e.GetMidPlatformOffset()),
		OneCoachOffset:       ptrFloat64(e.GetOneCoachOffset()),
		BrakeFeel: &BrakeFeelConfig{
			MinSpeed:            ptrFloat64(b.GetMinSpeed()),
			MaxSpeed:            ptrFloat64(b.GetMaxSpeed()),
			MinSpeedDrop:        ptrFloat64(b.GetMinSpeedDrop()),
			MaxSpeedVariation:   ptrFloat64(b.GetMaxSpeedVariation()),
			StabilizationPeriod: ptrInt(b.GetStabilizationPeriod()),
			NoiseTolerance:      ptrInt(b.GetNoiseTolerance()),
		},
		Workers: ptrInt(e.GetWorkers()),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	positive := []struct {
		name string
		v    *float64
	}{
		{"max_isd_diff", c.MaxISDDiff},
		{"max_isd_diff_fast", c.MaxISDDiffFast},
		{"anchor_tolerance_m", c.AnchorTolerance},
		{"span_tolerance_min_m", c.SpanToleranceMin},
		{"forward_correction_m", c.ForwardCorrection},
		{"mid_platform_offset_m", c.MidPlatformOffset},
		{"one_coach_offset_m", c.OneCoachOffset},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", p.name, *p.v)
		}
	}

	if c.OverspeedOffset != nil && *c.OverspeedOffset < 0 {
		return fmt.Errorf("overspeed_offset_kmh must not be negative, got %f", *c.OverspeedOffset)
	}
	if c.SpanToleranceRatio != nil && (*c.SpanToleranceRatio <= 0 || *c.SpanToleranceRatio > 1) {
		return fmt.Errorf("span_tolerance_ratio must be in (0, 1], got %f", *c.SpanToleranceRatio)
	}
	if c.LookaheadStations != nil && *c.LookaheadStations < 1 {
		return fmt.Errorf("lookahead_stations must be at least 1, got %d", *c.LookaheadStations)
	}
	if c.OverspeedMinDuration != nil && *c.OverspeedMinDuration < 1 {
		return fmt.Errorf("overspeed_min_duration must be at least 1, got %d", *c.OverspeedMinDuration)
	}
	if c.OverspeedDropPeek != nil && *c.OverspeedDropPeek < 1 {
		return fmt.Errorf("overspeed_drop_peek must be at least 1, got %d", *c.OverspeedDropPeek)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	if b := c.BrakeFeel; b != nil {
		if b.GetMinSpeed() >= b.GetMaxSpeed() {
			return fmt.Errorf("brake_feel.min_speed (%f) must be below max_speed (%f)", b.GetMinSpeed(), b.GetMaxSpeed())
		}
		if b.NoiseTolerance != nil && *b.NoiseTolerance < 0 {
			return fmt.Errorf("brake_feel.noise_tolerance must be non-negative, got %d", *b.NoiseTolerance)
		}
		if b.StabilizationPeriod != nil && *b.StabilizationPeriod < 1 {
			return fmt.Errorf("brake_feel.stabilization_period must be at least 1, got %d", *b.StabilizationPeriod)
		}
	}

	return nil
}

// GetMaxISDDiff returns the slow-train ISD tolerance in meters.
func (c *AnalysisConfig) GetMaxISDDiff() float64 {
	if c.MaxISDDiff == nil {
		return 100
	}
	return *c.MaxISDDiff
}

// GetMaxISDDiffFast returns the fast-train ISD tolerance in meters.
func (c *AnalysisConfig) GetMaxISDDiffFast() float64 {
	if c.MaxISDDiffFast == nil {
		return 175
	}
	return *c.MaxISDDiffFast
}

func (c *AnalysisConfig) GetAnchorTolerance() float64 {
	if c.AnchorTolerance == nil {
		return 250
	}
	return *c.AnchorTolerance
}

func (c *AnalysisConfig) GetSpanToleranceRatio() float64 {
	if c.SpanToleranceRatio == nil {
		return 0.2
	}
	return *c.SpanToleranceRatio
}

func (c *AnalysisConfig) GetSpanToleranceMin() float64 {
	if c.SpanToleranceMin == nil {
		return 3000
	}
	return *c.SpanToleranceMin
}

// GetLookaheadStations returns how many corridor stations past the last
// match a halt may be assigned to.
func (c *AnalysisConfig) GetLookaheadStations() int {
	if c.LookaheadStations == nil {
		return 5
	}
	return *c.LookaheadStations
}

func (c *AnalysisConfig) GetForwardCorrection() float64 {
	if c.ForwardCorrection == nil {
		return 200
	}
	return *c.ForwardCorrection
}

func (c *AnalysisConfig) GetOverspeedOffset() float64 {
	if c.OverspeedOffset == nil {
		return 3
	}
	return *c.OverspeedOffset
}

func (c *AnalysisConfig) GetOverspeedMinDuration() int {
	if c.OverspeedMinDuration == nil {
		return 7
	}
	return *c.OverspeedMinDuration
}

func (c *AnalysisConfig) GetOverspeedDropPeek() int {
	if c.OverspeedDropPeek == nil {
		return 3
	}
	return *c.OverspeedDropPeek
}

func (c *AnalysisConfig) GetMidPlatformOffset() float64 {
	if c.MidPlatformOffset == nil {
		return 130
	}
	return *c.MidPlatformOffset
}

func (c *AnalysisConfig) GetOneCoachOffset() float64 {
	if c.OneCoachOffset == nil {
		return 20
	}
	return *c.OneCoachOffset
}

// GetWorkers returns the batch analysis parallelism.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetBrakeFeel returns the brake-feel block, never nil.
func (c *AnalysisConfig) GetBrakeFeel() *BrakeFeelConfig {
	return c.brakeFeel()
}

func (c *AnalysisConfig) brakeFeel() *BrakeFeelConfig {
	if c.BrakeFeel == nil {
		return &BrakeFeelConfig{}
	}
	return c.BrakeFeel
}

func (b *BrakeFeelConfig) GetMinSpeed() float64 {
	if b.MinSpeed == nil {
		return 15
	}
	return *b.MinSpeed
}

// GetMaxSpeed returns the ceiling above which no brake-feel test is sought.
func (b *BrakeFeelConfig) GetMaxSpeed() float64 {
	if b.MaxSpeed == nil {
		return 40
	}
	return *b.MaxSpeed
}

func (b *BrakeFeelConfig) GetMinSpeedDrop() float64 {
	if b.MinSpeedDrop == nil {
		return 5
	}
	return *b.MinSpeedDrop
}

func (b *BrakeFeelConfig) GetMaxSpeedVariation() float64 {
	if b.MaxSpeedVariation == nil {
		return 3
	}
	return *b.MaxSpeedVariation
}

func (b *BrakeFeelConfig) GetStabilizationPeriod() int {
	if b.StabilizationPeriod == nil {
		return 5
	}
	return *b.StabilizationPeriod
}

func (b *BrakeFeelConfig) GetNoiseTolerance() int {
	if b.NoiseTolerance == nil {
		return 3
	}
	return *b.NoiseTolerance
}
