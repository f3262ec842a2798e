package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/spm"
	"github.com/jaynair0405/sub-spm/internal/units"
)

const (
	DefaultMidPlatformOffset = 130.0 // meters
	DefaultOneCoachOffset    = 20.0  // meters

	// Halts closer than this to the origin are the journey start.
	originHaltMeters = 10.0

	fastPlatformFile = "fast_isd.json"
	slowPlatformFile = "slow_isd.json"
	maxPlatformBytes = 8 << 20
)

// Platform is the platform a section terminates at, keyed by "A-B" or, when a
// section serves more than one platform, "A-B_STATION".
type Platform struct {
	Section          string  `json:"section"`
	Station          string  `json:"station"`
	PlatformLengthKM float64 `json:"platform_length_km"`
}

// PlatformTable maps section keys to platform data.
type PlatformTable map[string]Platform

// ReadPlatformTable decodes a JSON object of section → platform.
func ReadPlatformTable(r io.Reader) (PlatformTable, error) {
	var t PlatformTable
	if err := json.NewDecoder(io.LimitReader(r, maxPlatformBytes)).Decode(&t); err != nil {
		return nil, fmt.Errorf("failed to parse platform table: %w", err)
	}
	return t, nil
}

// Merge adds entries from other for sections t does not already have.
func (t PlatformTable) Merge(other PlatformTable) {
	for k, v := range other {
		if _, ok := t[k]; !ok {
			t[k] = v
		}
	}
}

// Length returns the platform length for station reached through section,
// trying the plain key first and then the "section_station" variant.
func (t PlatformTable) Length(station, section string) (float64, bool) {
	station = strings.TrimSpace(station)
	if p, ok := t[section]; ok && strings.TrimSpace(p.Station) == station {
		return p.PlatformLengthKM, true
	}
	if p, ok := t[section+"_"+station]; ok && strings.TrimSpace(p.Station) == station {
		return p.PlatformLengthKM, true
	}
	return 0, false
}

// anyFor returns the first section (by name) whose platform is at station.
func (t PlatformTable) anyFor(station string) (string, float64, bool) {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.TrimSpace(t[k].Station) == station {
			return k, t[k].PlatformLengthKM, true
		}
	}
	return "", 0, false
}

// PlatformStore loads and caches platform tables per train class. Fast trains
// get the fast table with slow entries merged in for missing sections, since
// their journeys often start on a slow corridor. Every other class uses the
// slow table alone.
type PlatformStore struct {
	dir string

	mu     sync.Mutex
	tables map[corridor.Class]PlatformTable
}

// NewPlatformStore reads tables from dir.
func NewPlatformStore(dir string) *PlatformStore {
	return &PlatformStore{dir: dir, tables: make(map[corridor.Class]PlatformTable)}
}

// Table returns the platform table for class.
func (s *PlatformStore) Table(class corridor.Class) (PlatformTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[class]; ok {
		return t, nil
	}

	var t PlatformTable
	if class == corridor.ClassFast {
		t = PlatformTable{}
		for _, name := range []string{fastPlatformFile, slowPlatformFile} {
			part, err := s.read(name)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			t.Merge(part)
		}
	} else {
		var err error
		if t, err = s.read(slowPlatformFile); err != nil {
			return nil, err
		}
	}
	monitoring.Logf("events: %d platform entries for %s trains", len(t), class)
	s.tables[class] = t
	return t, nil
}

func (s *PlatformStore) read(name string) (PlatformTable, error) {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("platform table: %w", err)
	}
	defer f.Close()
	t, err := ReadPlatformTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return t, nil
}

// PlatformOptions tunes platform entry sampling.
type PlatformOptions struct {
	// Scale is the run's distance scale. Zero means meters; callers with
	// kilometer runs must set it.
	Scale units.DistanceScale
	// MidPlatformOffset and OneCoachOffset are meters back from the halt.
	MidPlatformOffset float64
	OneCoachOffset    float64
}

func (o PlatformOptions) withDefaults() PlatformOptions {
	if o.MidPlatformOffset <= 0 {
		o.MidPlatformOffset = DefaultMidPlatformOffset
	}
	if o.OneCoachOffset <= 0 {
		o.OneCoachOffset = DefaultOneCoachOffset
	}
	return o
}

// PlatformEntry is the speed profile of a train running into one platform.
// Distances are kilometers; gaps are meters between the chosen sample and
// the target point.
type PlatformEntry struct {
	Station          string  `json:"station"`
	Section          string  `json:"section"`
	HaltKM           float64 `json:"halt_distance"`
	PlatformLengthKM float64 `json:"platform_length_km"`
	EntryKM          float64 `json:"entry_distance"`
	EntrySpeed       float64 `json:"entry_speed"`
	MidPlatformSpeed float64 `json:"mid_platform_speed"`
	OneCoachSpeed    float64 `json:"one_coach_speed"`
	EntryGapM        float64 `json:"entry_gap_m"`
	MidGapM          float64 `json:"mid_gap_m"`
	OneCoachGapM     float64 `json:"one_coach_gap_m"`
}

// PlatformEntrySpeeds samples the speed at platform entry, mid platform and
// one coach length before each matched halt. The journey's starting station
// and stations with no known platform are skipped. Results are in halt
// order.
func PlatformEntrySpeeds(halts map[string]float64, ordered []string, samples []spm.Sample, table PlatformTable, opts PlatformOptions) []PlatformEntry {
	opts = opts.withDefaults()
	if len(ordered) < 2 || len(samples) == 0 {
		return nil
	}
	scale := opts.Scale

	byDistance := make([]spm.Sample, len(samples))
	copy(byDistance, samples)
	sort.SliceStable(byDistance, func(i, j int) bool {
		return byDistance[i].CumulativeDistance < byDistance[j].CumulativeDistance
	})

	type halt struct {
		station string
		d       float64
	}
	sorted := make([]halt, 0, len(halts))
	for st, d := range halts {
		sorted = append(sorted, halt{st, d})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].d != sorted[j].d {
			return sorted[i].d < sorted[j].d
		}
		return sorted[i].station < sorted[j].station
	})
	position := make(map[string]int, len(ordered))
	for i, st := range ordered {
		position[st] = i
	}

	var out []PlatformEntry
	for hi, h := range sorted {
		if scale.ToMeters(h.d) < originHaltMeters {
			continue
		}

		var candidates []string
		if hi+1 < len(sorted) {
			candidates = append(candidates, h.station+"-"+sorted[hi+1].station)
		}
		if oi, ok := position[h.station]; ok {
			if oi+1 < len(ordered) {
				candidates = append(candidates, h.station+"-"+ordered[oi+1])
			}
			if oi > 0 {
				candidates = append(candidates, ordered[oi-1]+"-"+h.station)
			}
		}
		if hi > 0 {
			candidates = append(candidates, h.station+"-"+sorted[hi-1].station)
		}

		section, length, found := "", 0.0, false
		for _, c := range candidates {
			if length, found = table.Length(h.station, c); found {
				section = c
				break
			}
		}
		if !found {
			section, length, found = table.anyFor(h.station)
		}
		if !found {
			monitoring.Logf("events: no platform length for %s", h.station)
			continue
		}

		entryTarget := math.Max(h.d-scale.FromKilometers(length), 0)
		midTarget := math.Max(h.d-scale.FromMeters(opts.MidPlatformOffset), 0)
		coachTarget := math.Max(h.d-scale.FromMeters(opts.OneCoachOffset), 0)

		entry := SampleAtDistance(byDistance, entryTarget)
		mid := SampleAtDistance(byDistance, midTarget)
		coach := SampleAtDistance(byDistance, coachTarget)

		out = append(out, PlatformEntry{
			Station:          h.station,
			Section:          section,
			HaltKM:           scale.ToKilometers(h.d),
			PlatformLengthKM: length,
			EntryKM:          scale.ToKilometers(entryTarget),
			EntrySpeed:       entry.Speed,
			MidPlatformSpeed: mid.Speed,
			OneCoachSpeed:    coach.Speed,
			EntryGapM:        math.Abs(scale.ToMeters(entry.CumulativeDistance - entryTarget)),
			MidGapM:          math.Abs(scale.ToMeters(mid.CumulativeDistance - midTarget)),
			OneCoachGapM:     math.Abs(scale.ToMeters(coach.CumulativeDistance - coachTarget)),
		})
	}
	return out
}

// SampleAtDistance returns the first sample at or past target in a series
// sorted by cumulative distance, or the closest sample when the whole series
// lies before target. samples must not be empty.
func SampleAtDistance(samples []spm.Sample, target float64) spm.Sample {
	i := sort.Search(len(samples), func(i int) bool {
		return samples[i].CumulativeDistance >= target
	})
	if i < len(samples) {
		return samples[i]
	}
	return samples[len(samples)-1]
}
