// Package testutil provides shared test fixtures: a minimal reference data
// directory and a synthetic SPM run that matches it.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaynair0405/sub-spm/internal/spm"
)

// Reference data used by ReferenceDir. UPSLOWLOCALS runs A-B-C with
// inter-station distances of 4040 m and 4850 m.
const (
	TrainNumber = "97002"
	CorridorCSV = "Record Number,A,B,C\n1,0,4040,4850\n"

	SlowSegments = `[
  {"segment": "A-B", "limits": [{"startPct": 0, "endPct": 1, "limit": 50}]},
  {"segment": "B-C", "limits": [{"startPct": 0, "endPct": 1, "limit": 100}]}
]`

	SlowPlatforms = `{"A-B": {"section": "A-B", "station": "B", "platform_length_km": 0.2}}`

	trainLookupFile = "Sub  SPM Data Analysis - All Locals.csv"
	corridorFile    = "Sub  SPM Data Analysis - UPSLOWLOCALS.csv"
)

// JourneyHalts are the cumulative distances, in meters, where JourneyRows
// stands still.
var JourneyHalts = []float64{0, 4080, 8940}

// ReferenceDir writes a reference data directory for one UP slow corridor,
// resolving 97002 onto it and 97001 onto the unloaded DN corridor.
func ReferenceDir(t testing.TB) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		trainLookupFile:      "97002,97002\n97001,97001\n",
		corridorFile:         CorridorCSV,
		"slow_segments.json": SlowSegments,
		"slow_isd.json":      SlowPlatforms,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// JourneyRows builds one row per second: three stationary rows at A, a run
// at 60 km/h and 20 m per row to a halt at 4080 m, then on to 8940 m.
func JourneyRows() []spm.RawSample {
	var rows []spm.RawSample
	add := func(speed, dist float64) {
		sec := len(rows)
		rows = append(rows, spm.RawSample{
			Date:     "2026-03-02",
			Time:     fmt.Sprintf("10:%02d:%02d", sec/60, sec%60),
			Speed:    fmt.Sprint(speed),
			Distance: fmt.Sprint(dist),
		})
	}
	stop := func() {
		for range 3 {
			add(0, 0)
		}
	}
	run := func(n int) {
		for range n {
			add(60, 20)
		}
	}
	stop()
	run(204)
	stop()
	run(243)
	stop()
	return rows
}

// JourneyCSV renders JourneyRows as an SPM log with a header.
func JourneyCSV() string {
	var b strings.Builder
	b.WriteString("Date,Time,Speed,Distance\n")
	for _, r := range JourneyRows() {
		fmt.Fprintf(&b, "%s,%s,%s,%s\n", r.Date, r.Time, r.Speed, r.Distance)
	}
	return b.String()
}

// WriteJourneyCSV writes JourneyCSV into dir and returns the path.
func WriteJourneyCSV(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(JourneyCSV()), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}
