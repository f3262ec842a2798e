package testutil

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaynair0405/sub-spm/internal/spm"
)

// recordingTB captures Errorf calls instead of failing the test.
type recordingTB struct {
	testing.TB
	errors []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	rec := &recordingTB{TB: t}
	AssertStatusCode(rec, http.StatusOK, http.StatusOK)
	if len(rec.errors) != 0 {
		t.Fatalf("matching status reported errors: %v", rec.errors)
	}

	AssertStatusCode(rec, http.StatusOK, http.StatusBadRequest)
	if len(rec.errors) != 1 {
		t.Fatalf("mismatched status reported %d errors, want 1", len(rec.errors))
	}
	if want := "status code = 200, want 400"; rec.errors[0] != want {
		t.Errorf("error = %q, want %q", rec.errors[0], want)
	}
}

func TestJourneyRows(t *testing.T) {
	t.Parallel()

	run := spm.Clean(JourneyRows())
	if run.Dropped != 0 {
		t.Errorf("Dropped = %d, want 0", run.Dropped)
	}
	var halts []float64
	seen := map[float64]bool{}
	for _, s := range run.Samples {
		if s.Speed == 0 && !seen[s.CumulativeDistance] {
			seen[s.CumulativeDistance] = true
			halts = append(halts, s.CumulativeDistance)
		}
	}
	if len(halts) != len(JourneyHalts) {
		t.Fatalf("halts = %v, want %v", halts, JourneyHalts)
	}
	for i := range halts {
		if halts[i] != JourneyHalts[i] {
			t.Errorf("halt %d = %v, want %v", i, halts[i], JourneyHalts[i])
		}
	}
}

func TestJourneyCSV(t *testing.T) {
	t.Parallel()

	path := WriteJourneyCSV(t, t.TempDir(), "run.csv")
	raw, err := spm.ReadCSVFile(path)
	if err != nil {
		t.Fatalf("ReadCSVFile: %v", err)
	}
	if len(raw) != len(JourneyRows()) {
		t.Errorf("rows = %d, want %d", len(raw), len(JourneyRows()))
	}
	if !strings.HasPrefix(JourneyCSV(), "Date,Time,Speed,Distance\n") {
		t.Error("JourneyCSV is missing its header")
	}
}

func TestReferenceDir(t *testing.T) {
	t.Parallel()

	dir := ReferenceDir(t)
	for _, name := range []string{trainLookupFile, corridorFile, "slow_segments.json", "slow_isd.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}
