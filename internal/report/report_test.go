package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/events"
	"github.com/jaynair0405/sub-spm/internal/testutil"
)

func ptr(v float64) *float64 { return &v }

func sampleSeries() Series {
	return Series{
		Title: "SPM run 97002 A to C",
		Points: []Point{
			{Time: "10:00:00", KM: 0, Speed: 0, PSR: ptr(50)},
			{Time: "10:00:10", KM: 0.1, Speed: 40, PSR: ptr(50)},
			{Time: "10:00:20", KM: 0.3, Speed: 62},
			{Time: "10:00:30", KM: 0.5, Speed: 55, PSR: ptr(100)},
			{Time: "10:00:40", KM: 0.6, Speed: 0, PSR: ptr(100)},
		},
		Markers:   []Marker{{Station: "A", KM: 0}, {Station: "B", KM: 0.58, EntrySpeed: ptr(55)}},
		Overspeed: []Band{{StartKM: 0.1, EndKM: 0.3, Label: "+12 km/h"}},
	}
}

func journey(t *testing.T) *analysis.Result {
	t.Helper()
	m := corridor.NewManager(testutil.ReferenceDir(t))
	require.NoError(t, m.LoadAll())
	res, err := analysis.NewAnalyzer(m, nil).Analyze(context.Background(), testutil.JourneyRows(), analysis.Request{TrainNumber: testutil.TrainNumber})
	require.NoError(t, err)
	return res
}

func TestFromResult(t *testing.T) {
	t.Parallel()

	res := journey(t)
	s := FromResult(res)

	assert.Equal(t, "SPM run 97002 A to C", s.Title)
	assert.Equal(t, "UPSLOWLOCALS (slow)", s.Subtitle)
	require.Len(t, s.Points, len(res.Samples))
	last := s.Points[len(s.Points)-1]
	assert.InDelta(t, res.Samples[len(res.Samples)-1].CumulativeDistance/1000, last.KM, 1e-9, "meters become kilometers")
	require.NotNil(t, s.Points[10].PSR)
	assert.Equal(t, 50.0, *s.Points[10].PSR)

	require.Len(t, s.Markers, 3)
	assert.Equal(t, "B", s.Markers[1].Station)
	assert.InDelta(t, res.Markers[1].Distance/1000, s.Markers[1].KM, 1e-9)
	assert.Len(t, s.Overspeed, len(res.Overspeed))
	assert.Equal(t, 100.0, s.MaxSpeed(), "the B-C limit tops the 60 km/h run")
}

func TestFromStored(t *testing.T) {
	t.Parallel()

	run := &db.RunDetail{
		Run: db.Run{TrainNumber: "97002", FromStation: "A", ToStation: "C", RunDate: "2026-03-02",
			Corridor: "UPSLOWLOCALS", TrainClass: "slow", DistanceUnit: "m"},
		StationWindows: []events.PlatformEntry{{Station: "B", HaltKM: 4.08, EntrySpeed: 60}},
		Overspeed:      []events.OverspeedEvent{{StartKM: 100, EndKM: 300, MaxExcess: 10}},
	}
	points := []db.Point{
		{Seq: 0, Clock: "10:00:00", Cumulative: 0, Speed: 0},
		{Seq: 1, Clock: "10:00:01", Cumulative: 1500, Speed: 60, PSR: ptr(50)},
	}

	s := FromStored(run, points)
	assert.Equal(t, "2026-03-02 UPSLOWLOCALS (slow)", s.Subtitle)
	assert.Equal(t, 1.5, s.Points[1].KM)
	assert.Nil(t, s.Points[0].PSR)
	require.Len(t, s.Markers, 1)
	assert.Equal(t, 4.08, s.Markers[0].KM)
	assert.Equal(t, 60.0, *s.Markers[0].EntrySpeed)
	assert.Equal(t, []Band{{StartKM: 0.1, EndKM: 0.3, Label: "+10 km/h"}}, s.Overspeed)

	run.DistanceUnit = "km"
	assert.Equal(t, 1500.0, FromStored(run, points).Points[1].KM)
}

func TestRenderHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, sampleSeries()))
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "SPM run 97002 A to C")
	assert.Contains(t, html, "B (55)")
	assert.Contains(t, html, "PSR")
}

func TestWritePNG(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, sampleSeries()))
	assert.Equal(t, "\x89PNG", buf.String()[:4])
}

func TestSavePNG(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plots", "run.png")
	require.NoError(t, SavePNG(path, sampleSeries()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestLimitRuns(t *testing.T) {
	t.Parallel()

	runs := limitRuns(sampleSeries().Points)
	require.Len(t, runs, 2, "the unknown sample splits the PSR line")
	assert.Len(t, runs[0], 2)
	assert.Len(t, runs[1], 2)
	assert.Empty(t, limitRuns(nil))
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSeries()))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"0", "10:00:00", "0.000", "0", "50", "A"}, rows[1])
	assert.Equal(t, []string{"2", "10:00:20", "0.300", "62", "", ""}, rows[3])
	assert.Equal(t, "B", rows[5][5], "B sits nearest the last sample")
}
