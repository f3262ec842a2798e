package psr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/jaynair0405/sub-spm/internal/corridor"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
)

// ErrUnknownClass is returned for a train class without a limit table.
var ErrUnknownClass = errors.New("unknown train class")

const maxTableBytes = 8 << 20

// Position is a point expressed as a fraction through a named segment.
type Position struct {
	Segment    string  `json:"segment"`
	Percentage float64 `json:"percentage"`
}

// Range is one contiguous percentage band of a segment and its limit.
type Range struct {
	StartPct float64 `json:"startPct"`
	EndPct   float64 `json:"endPct"`
	Limit    float64 `json:"limit"`
}

// SegmentLimits lists the ranges of one "A-B" segment, sorted by StartPct.
type SegmentLimits struct {
	Segment string  `json:"segment"`
	Limits  []Range `json:"limits"`
}

// Table is a read-only percentage-based restriction table.
type Table struct {
	Segments []SegmentLimits
	index    map[string]int
}

// NewTable indexes segments by name. A repeated segment keeps its first entry.
func NewTable(segments []SegmentLimits) *Table {
	t := &Table{Segments: segments, index: make(map[string]int, len(segments))}
	for i, s := range segments {
		if _, dup := t.index[s.Segment]; !dup {
			t.index[s.Segment] = i
		}
	}
	return t
}

// ReadTable decodes a JSON array of segments.
func ReadTable(r io.Reader) (*Table, error) {
	var segs []SegmentLimits
	if err := json.NewDecoder(io.LimitReader(r, maxTableBytes)).Decode(&segs); err != nil {
		return nil, fmt.Errorf("failed to parse segment limits: %w", err)
	}
	return NewTable(segs), nil
}

// Lookup returns the ranges for segment.
func (t *Table) Lookup(segment string) (SegmentLimits, bool) {
	if t == nil {
		return SegmentLimits{}, false
	}
	i, ok := t.index[segment]
	if !ok {
		return SegmentLimits{}, false
	}
	return t.Segments[i], true
}

// Limit is a permitted speed in km/h. A zero Limit with OK false means no
// restriction could be determined; it encodes as JSON null.
type Limit struct {
	KMH float64
	OK  bool
}

// Known builds a valid limit.
func Known(kmh float64) Limit { return Limit{KMH: kmh, OK: true} }

func (l Limit) MarshalJSON() ([]byte, error) {
	if !l.OK {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(l.KMH, 'f', -1, 64)), nil
}

func (l *Limit) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = Limit{}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*l = Known(v)
	return nil
}

// SpeedLimit looks up the limit at pos. A range matches when
// StartPct <= pct < EndPct; the final range also takes pct >= EndPct.
func SpeedLimit(pos Position, t *Table) Limit {
	seg, ok := t.Lookup(pos.Segment)
	if !ok {
		return Limit{}
	}
	for i, r := range seg.Limits {
		if r.StartPct <= pos.Percentage && pos.Percentage < r.EndPct {
			return Known(r.Limit)
		}
		if i == len(seg.Limits)-1 && pos.Percentage >= r.EndPct {
			return Known(r.Limit)
		}
	}
	return Limit{}
}

var tableFiles = map[corridor.Class]string{
	corridor.ClassFast: "fast_segments.json",
	corridor.ClassSlow: "slow_segments.json",
	corridor.ClassTHB:  "thb_segments.json",
}

// TableStore loads limit tables from a directory once per class.
type TableStore struct {
	dir string

	mu     sync.Mutex
	tables map[corridor.Class]*Table
}

// NewTableStore reads tables from dir.
func NewTableStore(dir string) *TableStore {
	return &TableStore{dir: dir, tables: make(map[corridor.Class]*Table)}
}

// Table returns the cached table for class, loading it on first use.
func (s *TableStore) Table(class corridor.Class) (*Table, error) {
	file, ok := tableFiles[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q (want fast, slow or thb)", ErrUnknownClass, class)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[class]; ok {
		return t, nil
	}

	f, err := os.Open(filepath.Join(s.dir, file))
	if err != nil {
		return nil, fmt.Errorf("segment limits for %s: %w", class, err)
	}
	defer f.Close()

	t, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	monitoring.Logf("psr: loaded %d segments from %s", len(t.Segments), file)
	s.tables[class] = t
	return t, nil
}
