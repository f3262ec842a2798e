// Package analysis runs the full SPM pipeline over one log: resolve the
// train's corridor, clean the samples, detect halts, match them to stations,
// trim the run to the matched journey, map speed restrictions onto it and
// scan for events. It always returns a best-effort result; stages that
// cannot run add a warning instead of failing the analysis.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jaynair0405/sub-spm/internal/config"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/events"
	"github.com/jaynair0405/sub-spm/internal/halts"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/psr"
	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/timeutil"
	"github.com/jaynair0405/sub-spm/internal/units"
)

// ErrNoSamples is returned when cleaning leaves nothing to analyse.
var ErrNoSamples = errors.New("no valid samples")

// Request describes one uploaded run.
type Request struct {
	Filename    string `json:"filename,omitempty"`
	TrainNumber string `json:"train_number,omitempty"`
	From        string `json:"from_station,omitempty"`
	To          string `json:"to_station,omitempty"`
	StaffID     string `json:"staff_id,omitempty"`
	Notes       string `json:"notes,omitempty"`
	// Debug keeps the matcher's trace events in the result.
	Debug bool `json:"-"`
}

// Result is everything derived from one run. Distances are in the run's own
// scale unless a field name says otherwise.
type Result struct {
	Request    Request        `json:"request"`
	AnalyzedAt time.Time      `json:"analyzed_at"`
	Corridor   *corridor.Info `json:"corridor_info,omitempty"`
	Class      corridor.Class `json:"train_type,omitempty"`
	Unit       string         `json:"distance_unit"`

	// From and To are the journey endpoints, taken from the request or
	// from the matched stations when the request left them out.
	From string `json:"from_station,omitempty"`
	To   string `json:"to_station,omitempty"`

	Samples []spm.Sample `json:"samples"`
	// Source maps each sample back to its row in the uploaded file.
	Source []int `json:"-"`

	Halts    []float64          `json:"halts"`
	Match    halts.Result       `json:"match"`
	Stations map[string]float64 `json:"halting_stations"`
	Ordered  []string           `json:"ordered_stations"`
	KM       map[string]float64 `json:"station_km"`
	Offset   float64            `json:"trim_offset"`

	Enhanced         []psr.EnhancedStation   `json:"enhanced_stations,omitempty"`
	PSR              []psr.Limit             `json:"psr"`
	Violations       []psr.Violation         `json:"violations"`
	ViolationSummary psr.ViolationSummary    `json:"violations_summary"`
	Overspeed        []events.OverspeedEvent `json:"overspeed_events"`
	PlatformEntries  []events.PlatformEntry  `json:"platform_entries"`
	BrakeFeel        []events.BrakeFeelTest  `json:"brake_feel_tests"`
	Markers          []StationMarker         `json:"station_markers"`

	Summary  Summary                 `json:"summary"`
	Trace    []monitoring.TraceEvent `json:"trace,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`

	scale units.DistanceScale
}

// Scale returns the run's distance scale.
func (r *Result) Scale() units.DistanceScale { return r.scale }

func (r *Result) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	monitoring.Logf("analysis: %s", msg)
	r.Warnings = append(r.Warnings, msg)
}

// Analyzer runs the pipeline against a set of loaded corridors and the
// reference tables beside them. It is safe for concurrent use.
type Analyzer struct {
	corridors *corridor.Manager
	limits    *psr.TableStore
	platforms *events.PlatformStore
	cfg       *config.AnalysisConfig
	clock     timeutil.Clock
}

// NewAnalyzer reads speed-limit and platform tables from the corridor
// manager's data directory. A nil cfg uses the built-in defaults.
func NewAnalyzer(corridors *corridor.Manager, cfg *config.AnalysisConfig) *Analyzer {
	if cfg == nil {
		cfg = config.EmptyAnalysisConfig()
	}
	return &Analyzer{
		corridors: corridors,
		limits:    psr.NewTableStore(corridors.DataDir()),
		platforms: events.NewPlatformStore(corridors.DataDir()),
		cfg:       cfg,
		clock:     timeutil.RealClock{},
	}
}

// SetClock replaces the clock used to stamp results.
func (a *Analyzer) SetClock(c timeutil.Clock) { a.clock = c }

// Corridors returns the analyzer's corridor manager.
func (a *Analyzer) Corridors() *corridor.Manager { return a.corridors }

// Config returns the analysis configuration.
func (a *Analyzer) Config() *config.AnalysisConfig { return a.cfg }

// AnalyzeFile reads an SPM CSV file and analyses it.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, req Request) (*Result, error) {
	raw, err := spm.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, raw, req)
}

// Analyze runs the pipeline over raw rows. The only failures are an empty
// log and a cancelled context; everything else degrades to warnings.
func (a *Analyzer) Analyze(ctx context.Context, raw []spm.RawSample, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := spm.Clean(raw)
	if run.Len() == 0 {
		return nil, fmt.Errorf("%w: %d rows read, none usable", ErrNoSamples, len(raw))
	}

	res := &Result{
		Request:    req,
		AnalyzedAt: a.clock.Now().UTC(),
		scale:      run.Scale(),
		From:       corridor.NormalizeStation(req.From),
		To:         corridor.NormalizeStation(req.To),
		Stations:   map[string]float64{},
		KM:         map[string]float64{},
	}
	res.Unit = res.scale.String()
	res.Halts = halts.Detect(run.Samples)

	c := a.resolve(res, req)
	if c != nil {
		run = a.matchAndTrim(res, run, c, req)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.speedLimits(res, run)
	}

	res.Samples = run.Samples
	res.Source = run.Source
	a.detectEvents(res, run)
	res.Markers = stationMarkers(res)
	res.Summary = Summarize(run, res.scale)
	res.Summary.HaltCount = len(res.Halts)
	res.Summary.MatchedHalts = len(res.Stations)
	res.Summary.PSRCalculated = len(res.PSR) > 0

	monitoring.Logf("analysis: %s train=%s rows=%d halts=%d matched=%d violations=%d warnings=%d",
		req.Filename, req.TrainNumber, run.Len(), len(res.Halts), len(res.Stations), len(res.Violations), len(res.Warnings))
	return res, nil
}

// resolve finds the corridor for the requested train, or nil.
func (a *Analyzer) resolve(res *Result, req Request) *corridor.Corridor {
	if req.TrainNumber == "" {
		res.warnf("no train number given; corridor analysis skipped")
		return nil
	}
	info, ok := a.corridors.ResolveTrain(req.TrainNumber, req.From, req.To)
	if !ok {
		res.warnf("train %s could not be resolved to a corridor", req.TrainNumber)
		return nil
	}
	res.Corridor = &info
	res.Class = info.Class

	c, ok := a.corridors.Corridor(info.Corridor)
	if !ok {
		res.warnf("corridor %s is not loaded", info.Corridor)
		return nil
	}
	return c
}

func (a *Analyzer) matchOptions(res *Result, req Request) halts.Options {
	opts := halts.Options{
		From:               req.From,
		To:                 req.To,
		Scale:              res.scale,
		MaxISDDiff:         a.cfg.GetMaxISDDiff(),
		AnchorTolerance:    a.cfg.GetAnchorTolerance(),
		SpanToleranceRatio: a.cfg.GetSpanToleranceRatio(),
		SpanToleranceMin:   a.cfg.GetSpanToleranceMin(),
		ForwardCorrection:  a.cfg.GetForwardCorrection(),
		Lookahead:          a.cfg.GetLookaheadStations(),
	}
	if res.Class != corridor.ClassFast {
		return opts
	}

	opts.MaxISDDiff = a.cfg.GetMaxISDDiffFast()
	if h, ok := a.corridors.TrainHalts(req.TrainNumber); ok {
		opts.Nominated = h.Stations
		if h.SemiFast() {
			slowName := string(res.Corridor.Direction) + corridor.BaseSlow
			if slow, ok := a.corridors.Corridor(slowName); ok {
				opts.SwitchOver = &halts.SwitchOver{Station: h.SlowFrom, Corridor: slow}
			} else {
				res.warnf("semi-fast switch-over at %s needs corridor %s, which is not loaded", h.SlowFrom, slowName)
			}
		}
	}
	return opts
}

// matchAndTrim matches halts to stations and cuts the run down to the
// matched journey, rebasing every distance so the journey starts at zero.
func (a *Analyzer) matchAndTrim(res *Result, run *spm.Run, c *corridor.Corridor, req Request) *spm.Run {
	opts := a.matchOptions(res, req)
	var rec *monitoring.RecordingTracer
	if req.Debug {
		rec = &monitoring.RecordingTracer{}
		opts.Tracer = rec
	}

	m, err := halts.Match(res.Halts, c, opts)
	if rec != nil {
		res.Trace = rec.Events()
	}
	switch {
	case errors.Is(err, halts.ErrAnchorNotFound):
		res.warnf("no halt near %s; recording may not cover the requested journey", res.From)
	case err != nil:
		res.warnf("halt matching failed: %v", err)
	}
	res.Match = m
	res.Ordered = m.Ordered

	km := a.corridors.KMTable(c, res.Class)
	for st, meters := range km {
		km[st] = res.scale.FromMeters(meters)
	}

	if (res.From == "" || res.To == "") && len(m.Ordered) >= 2 {
		res.From, res.To = m.Ordered[0], m.Ordered[len(m.Ordered)-1]
	}

	if len(m.Stations) == 0 {
		res.warnf("no halts matched to stations on %s", c.Name)
		res.KM = km
		return run
	}

	start, end, clip := trimBounds(m.Stations, req)
	res.Offset = start
	trimmed := run.Segment(start, end, clip)

	for st, d := range m.Stations {
		res.Stations[st] = d - start
	}
	for _, st := range m.Ordered {
		if v, ok := km[st]; ok {
			res.KM[st] = v - start
		}
	}
	return trimmed
}

// trimBounds picks the journey window. Both endpoints are honoured only when
// the caller named both and both were matched; otherwise the journey runs
// from the earliest matched halt to the end of the data.
func trimBounds(stations map[string]float64, req Request) (start, end float64, clip bool) {
	from, to := corridor.NormalizeStation(req.From), corridor.NormalizeStation(req.To)
	if from != "" && to != "" {
		s, okFrom := stations[from]
		e, okTo := stations[to]
		if okFrom && okTo && e >= s {
			return s, e, true
		}
	}
	start = math.Inf(1)
	for _, d := range stations {
		start = math.Min(start, d)
	}
	return start, 0, false
}

func (a *Analyzer) speedLimits(res *Result, run *spm.Run) {
	table, err := a.limits.Table(res.Class)
	if err != nil {
		res.warnf("speed limits unavailable: %v", err)
		return
	}
	if len(res.Ordered) < 2 {
		res.warnf("fewer than two stations on the journey; speed limits skipped")
		return
	}

	start, end := run.Bounds()
	res.Enhanced = psr.Rescale(res.Ordered, res.KM, res.Stations, start, end)
	res.PSR = psr.ProcessTrainSpeedLimits(run.Samples, res.Ordered, res.KM, res.Stations, table)
	res.Violations = psr.DetectViolations(run.Samples, res.PSR)
	res.ViolationSummary = psr.Summarize(res.Violations)
}

func (a *Analyzer) detectEvents(res *Result, run *spm.Run) {
	if len(res.PSR) > 0 {
		offset := a.cfg.GetOverspeedOffset()
		res.Overspeed = events.DetectOverspeed(run.Samples, res.PSR, events.OverspeedOptions{
			Offset:      &offset,
			MinDuration: a.cfg.GetOverspeedMinDuration(),
			DropPeek:    a.cfg.GetOverspeedDropPeek(),
		})
	}

	if len(res.Stations) > 0 && res.Class != "" {
		table, err := a.platforms.Table(res.Class)
		if err != nil {
			res.warnf("platform lengths unavailable: %v", err)
		} else {
			res.PlatformEntries = events.PlatformEntrySpeeds(res.Stations, res.Ordered, run.Samples, table, events.PlatformOptions{
				Scale:             res.scale,
				MidPlatformOffset: a.cfg.GetMidPlatformOffset(),
				OneCoachOffset:    a.cfg.GetOneCoachOffset(),
			})
		}
	}

	bf := a.cfg.GetBrakeFeel()
	res.BrakeFeel = events.DetectBrakeFeel(run.Samples, events.BrakeFeelOptions{
		MinSpeed:            bf.GetMinSpeed(),
		MaxSpeed:            bf.GetMaxSpeed(),
		MinSpeedDrop:        bf.GetMinSpeedDrop(),
		MaxSpeedVariation:   bf.GetMaxSpeedVariation(),
		StabilizationPeriod: bf.GetStabilizationPeriod(),
		NoiseTolerance:      bf.GetNoiseTolerance(),
		Scale:               res.scale,
	})
}
