package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaynair0405/sub-spm/internal/config"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/psr"
	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/testutil"
	"github.com/jaynair0405/sub-spm/internal/timeutil"
)

func newAnalyzer(t *testing.T, dir string) *Analyzer {
	t.Helper()
	m := corridor.NewManager(dir)
	require.NoError(t, m.LoadAll())
	a := NewAnalyzer(m, nil)
	a.SetClock(timeutil.NewMockClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)))
	return a
}

func TestAnalyze_EndToEnd(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, testutil.ReferenceDir(t))
	res, err := a.Analyze(context.Background(), testutil.JourneyRows(), Request{Filename: "run.csv", TrainNumber: testutil.TrainNumber})
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	require.NotNil(t, res.Corridor)
	assert.Equal(t, "UPSLOWLOCALS", res.Corridor.Corridor)
	assert.Equal(t, corridor.ClassSlow, res.Class)
	assert.Equal(t, "m", res.Unit)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), res.AnalyzedAt)

	assert.Equal(t, testutil.JourneyHalts, res.Halts)
	assert.Equal(t, []string{"A", "B", "C"}, res.Ordered)
	if diff := cmp.Diff(map[string]float64{"A": 0, "B": 4080, "C": 8940}, res.Stations, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("stations mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "A", res.From)
	assert.Equal(t, "C", res.To)

	require.Len(t, res.PSR, len(res.Samples))
	assert.Equal(t, psr.Known(50), res.PSR[10])
	assert.Equal(t, psr.Known(100), res.PSR[len(res.PSR)-10])

	require.NotEmpty(t, res.Violations)
	assert.Equal(t, psr.Severe, res.Violations[0].Severity)
	assert.Equal(t, len(res.Violations), res.ViolationSummary.Severe)
	require.Len(t, res.Overspeed, 1)
	assert.Equal(t, 60.0, res.Overspeed[0].MaxSpeed)

	require.Len(t, res.PlatformEntries, 1)
	assert.Equal(t, "B", res.PlatformEntries[0].Station)
	assert.Equal(t, "A-B", res.PlatformEntries[0].Section)
	assert.Equal(t, 60.0, res.PlatformEntries[0].EntrySpeed)
	assert.Empty(t, res.BrakeFeel, "steady 60 km/h is above the brake-feel ceiling")

	names := make([]string, len(res.Markers))
	for i, m := range res.Markers {
		names[i] = m.Station
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	require.NotNil(t, res.Markers[1].EntrySpeed)
	assert.Equal(t, 60.0, *res.Markers[1].EntrySpeed)

	assert.Equal(t, len(res.Samples), res.Summary.Rows)
	assert.Equal(t, 3, res.Summary.HaltCount)
	assert.Equal(t, 3, res.Summary.MatchedHalts)
	assert.True(t, res.Summary.PSRCalculated)
	assert.Equal(t, 60.0, res.Summary.MaxSpeed)
	assert.InDelta(t, 8.94, res.Summary.TotalDistanceKM, 1e-9)
}

func TestAnalyze_TrimToRequestedStations(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, testutil.ReferenceDir(t))
	res, err := a.Analyze(context.Background(), testutil.JourneyRows(), Request{TrainNumber: "97002", From: "b", To: "c"})
	require.NoError(t, err)

	assert.Equal(t, 4080.0, res.Offset)
	assert.Equal(t, []string{"B", "C"}, res.Ordered)
	assert.InDelta(t, 0, res.Stations["B"], 1e-9)
	assert.InDelta(t, 4860, res.Stations["C"], 1e-9)
	for _, s := range res.Samples {
		assert.GreaterOrEqual(t, s.CumulativeDistance, 0.0)
		assert.LessOrEqual(t, s.CumulativeDistance, 4860.0)
	}
	assert.Equal(t, map[string]float64{"B": -40, "C": 4810}, res.KM, "official positions rebased on the B halt")
}

func TestAnalyze_Degrades(t *testing.T) {
	t.Parallel()

	dir := testutil.ReferenceDir(t)
	a := newAnalyzer(t, dir)

	tests := []struct {
		name    string
		req     Request
		warning string
	}{
		{"no train", Request{}, "no train number"},
		{"unknown train", Request{TrainNumber: "12345"}, "could not be resolved"},
		{"corridor not loaded", Request{TrainNumber: "97001"}, "not loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := a.Analyze(context.Background(), testutil.JourneyRows(), tt.req)
			require.NoError(t, err)
			require.NotEmpty(t, res.Warnings)
			assert.Contains(t, res.Warnings[0], tt.warning)
			assert.Empty(t, res.PSR)
			assert.Equal(t, testutil.JourneyHalts, res.Halts)
			assert.False(t, res.Summary.PSRCalculated)
		})
	}
}

func TestAnalyze_MissingTablesWarn(t *testing.T) {
	t.Parallel()

	dir := testutil.ReferenceDir(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "slow_segments.json")))
	require.NoError(t, os.Remove(filepath.Join(dir, "slow_isd.json")))

	res, err := newAnalyzer(t, dir).Analyze(context.Background(), testutil.JourneyRows(), Request{TrainNumber: "97002"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "speed limits unavailable")
	assert.Contains(t, res.Warnings[1], "platform lengths unavailable")
	assert.Len(t, res.Stations, 3, "matching does not depend on the tables")
}

func TestAnalyze_Errors(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, testutil.ReferenceDir(t))

	_, err := a.Analyze(context.Background(), []spm.RawSample{{Speed: "x", Time: "10:00:00"}}, Request{})
	assert.ErrorIs(t, err, ErrNoSamples)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, testutil.JourneyRows(), Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_DebugTrace(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t, testutil.ReferenceDir(t))
	res, err := a.Analyze(context.Background(), testutil.JourneyRows(), Request{TrainNumber: "97002", Debug: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Trace)

	res, err = a.Analyze(context.Background(), testutil.JourneyRows(), Request{TrainNumber: "97002"})
	require.NoError(t, err)
	assert.Empty(t, res.Trace)
}

func TestTrimBounds(t *testing.T) {
	t.Parallel()

	stations := map[string]float64{"A": 100, "B": 4000, "C": 9000}
	tests := []struct {
		name  string
		req   Request
		start float64
		end   float64
		clip  bool
	}{
		{"both matched", Request{From: "a", To: "B"}, 100, 4000, true},
		{"only from", Request{From: "B"}, 100, 0, false},
		{"to unmatched", Request{From: "A", To: "Z"}, 100, 0, false},
		{"reversed", Request{From: "C", To: "A"}, 100, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			start, end, clip := trimBounds(stations, tt.req)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
			assert.Equal(t, tt.clip, clip)
		})
	}
}

func TestAnalyzeAll(t *testing.T) {
	t.Parallel()

	dir := testutil.ReferenceDir(t)
	good := testutil.WriteJourneyCSV(t, t.TempDir(), "good.csv")

	cfg := config.EmptyAnalysisConfig()
	cfg.Workers = ptr(2)
	m := corridor.NewManager(dir)
	require.NoError(t, m.LoadAll())
	a := NewAnalyzer(m, cfg)

	jobs := []Job{
		{Path: good, Request: Request{TrainNumber: "97002"}},
		{Path: filepath.Join(t.TempDir(), "missing.csv")},
		{Path: good, Request: Request{TrainNumber: "97002", From: "B"}},
	}
	out, err := a.AnalyzeAll(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, out, 3)

	require.NoError(t, out[0].Err)
	assert.Len(t, out[0].Result.Stations, 3)
	assert.Error(t, out[1].Err)
	assert.Nil(t, out[1].Result)
	require.NoError(t, out[2].Err)
	assert.Equal(t, "B", out[2].Result.Ordered[0])
	assert.Equal(t, jobs[1], out[1].Job)
}

func TestStationMarkers_UnmatchedOrigin(t *testing.T) {
	t.Parallel()

	res := &Result{
		From:     "A",
		Samples:  []spm.Sample{{CumulativeDistance: 0}, {CumulativeDistance: 1000}, {CumulativeDistance: 2000}},
		Stations: map[string]float64{"B": 1900},
	}
	got := stationMarkers(res)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Station)
	require.NotNil(t, got[0].EntrySpeed)
	assert.Zero(t, *got[0].EntrySpeed)
	assert.Equal(t, "B", got[1].Station)
	assert.Equal(t, 2, got[1].SampleIndex)
	assert.Nil(t, got[1].EntrySpeed)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	run := spm.FromSeries([]float64{0, 10, 20, 30, 0}, []float64{0, 100, 200, 300, 50})
	s := Summarize(run, run.Scale())
	assert.Equal(t, 5, s.Rows)
	assert.Equal(t, 30.0, s.MaxSpeed)
	assert.Equal(t, 12.0, s.AvgSpeed)
	assert.Equal(t, 20.0, s.MovingAvgSpeed)
	assert.Equal(t, 600.0, s.TotalDistance)
	assert.InDelta(t, 0.6, s.TotalDistanceKM, 1e-9)
	assert.Equal(t, 4.0, s.Duration)

	assert.Equal(t, Summary{}, Summarize(nil, run.Scale()))
}

func ptr[T any](v T) *T { return &v }
