package corridor

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jaynair0405/sub-spm/internal/monitoring"
)

// Default reference file names inside the data directory.
const (
	DefaultTrainLookupFile = "Sub  SPM Data Analysis - All Locals.csv"
	DefaultFastHaltsFile   = "fast_locals.csv"
)

// DefaultFiles maps each known corridor to its CSV file.
var DefaultFiles = map[string]string{
	"DNFASTLOCALS": "DNFASTLOCALS.csv",
	"UPFASTLOCALS": "UPFASTLOCALS.csv",
	"DNLOCALSNE":   "DNLOCALSNE.csv",
	"UPLOCALSNE":   "UPLOCALSNE.csv",
	"DNLOCALSSE":   "DNLOCALSSE.csv",
	"UPLOCALSSE":   "UPLOCALSSE.csv",
	"DNSLOWLOCALS": "DNSLOWLOCALS.csv",
	"UPSLOWLOCALS": "Sub  SPM Data Analysis - UPSLOWLOCALS.csv",
	"DNTHB_PNVL":   "DNTHB_PNVL.csv",
	"UPTHB_PNVL":   "UPTHB_PNVL.csv",
	"DNTHB_VSH":    "DNTHB_VSH.csv",
	"UPTHB_VSH":    "UPTHB_VSH.csv",
	"DNHARBOUR":    "DNHARBOUR.csv",
	"UPHARBOUR":    "UPHARBOUR.csv",
}

const maxKMTableBytes = 1 << 20

// TrainHalts is the nominated stopping pattern of a fast train. SlowFrom,
// when set, is the station after which the train runs as a slow local.
type TrainHalts struct {
	Stations []string `json:"stations"`
	SlowFrom string   `json:"slow_from,omitempty"`
}

// SemiFast reports whether the train switches to the slow line.
func (h TrainHalts) SemiFast() bool { return h.SlowFrom != "" }

// Manager is the process-wide registry of corridors and train lookups. It is
// safe for concurrent use; loaded corridors are never mutated.
type Manager struct {
	dataDir string

	mu         sync.RWMutex
	corridors  map[string]*Corridor
	trainCodes map[string]string
	fastHalts  map[string]TrainHalts
	kmTables   map[Class]map[string]float64
}

// NewManager returns an empty registry reading reference files from dataDir.
func NewManager(dataDir string) *Manager {
	return &Manager{
		dataDir:    dataDir,
		corridors:  make(map[string]*Corridor),
		trainCodes: make(map[string]string),
		fastHalts:  make(map[string]TrainHalts),
		kmTables:   make(map[Class]map[string]float64),
	}
}

// DataDir returns the reference data directory.
func (m *Manager) DataDir() string { return m.dataDir }

// NormalizeTrainNumber strips spaces and upper-cases a train number.
func NormalizeTrainNumber(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, " ", ""))
}

// LoadAll loads the train lookup, fast halts and default corridors. Missing
// files are skipped.
func (m *Manager) LoadAll() error {
	if err := m.LoadTrainLookup(DefaultTrainLookupFile); err != nil {
		return err
	}
	if err := m.LoadFastHalts(DefaultFastHaltsFile); err != nil {
		return err
	}
	n := m.LoadDefaultCorridors()
	monitoring.Logf("corridor: loaded %d corridors, %d train codes from %s", n, m.trainCodeCount(), m.dataDir)
	return nil
}

func (m *Manager) open(name string) (*os.File, error) {
	f, err := os.Open(filepath.Join(m.dataDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// LoadTrainLookup reads rows of (train number, train code).
func (m *Manager) LoadTrainLookup(name string) error {
	f, err := m.open(name)
	if err != nil || f == nil {
		return err
	}
	defer f.Close()
	return m.ReadTrainLookup(f)
}

// ReadTrainLookup reads train-code rows from r. Rows with fewer than two
// cells or an empty cell are ignored.
func (m *Manager) ReadTrainLookup(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse train lookup: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		train := NormalizeTrainNumber(row[0])
		code := strings.TrimSpace(row[1])
		if train != "" && code != "" {
			m.trainCodes[train] = code
		}
	}
	return nil
}

// LoadFastHalts reads the nominated halt list of fast trains.
func (m *Manager) LoadFastHalts(name string) error {
	f, err := m.open(name)
	if err != nil || f == nil {
		return err
	}
	defer f.Close()
	return m.ReadFastHalts(f)
}

// ReadFastHalts reads a CSV with "Train Number" and comma-separated "Halts"
// columns and an optional "Slow From" column.
func (m *Manager) ReadFastHalts(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse fast halts: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	col := make(map[string]int)
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	trainCol, okTrain := col["train number"]
	haltsCol, okHalts := col["halts"]
	if !okTrain || !okHalts {
		return fmt.Errorf("fast halts: need Train Number and Halts columns, got %v", rows[0])
	}
	slowCol, hasSlow := col["slow from"]

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows[1:] {
		if trainCol >= len(row) || haltsCol >= len(row) {
			continue
		}
		train := NormalizeTrainNumber(row[trainCol])
		var stations []string
		for _, s := range strings.Split(row[haltsCol], ",") {
			if code := NormalizeStation(s); code != "" {
				stations = append(stations, code)
			}
		}
		if train == "" || len(stations) == 0 {
			continue
		}
		h := TrainHalts{Stations: stations}
		if hasSlow && slowCol < len(row) {
			h.SlowFrom = NormalizeStation(row[slowCol])
		}
		m.fastHalts[train] = h
	}
	return nil
}

// LoadDefaultCorridors loads every corridor in DefaultFiles that exists in
// the data directory and returns how many were loaded. Fast corridors are
// completed from the slow corridor of the same direction.
func (m *Manager) LoadDefaultCorridors() int {
	loaded := 0
	for name, file := range DefaultFiles {
		path := filepath.Join(m.dataDir, file)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		c, err := LoadFile(path)
		if err != nil {
			monitoring.Logf("corridor: skipping %s: %v", name, err)
			continue
		}
		c.Name = name
		m.Register(c)
		loaded++
	}

	for _, dir := range []Direction{Up, Down} {
		fast, okFast := m.Corridor(string(dir) + BaseFast)
		slow, okSlow := m.Corridor(string(dir) + BaseSlow)
		if okFast && okSlow {
			m.Register(FillFromSlow(fast, slow))
		}
	}
	return loaded
}

// Register adds or replaces a corridor under its name.
func (m *Manager) Register(c *Corridor) {
	m.mu.Lock()
	m.corridors[c.Name] = c
	m.mu.Unlock()
}

// RegisterFile loads a corridor CSV and registers it under name.
func (m *Manager) RegisterFile(name, path string) (*Corridor, error) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	c.Name = strings.ToUpper(name)
	m.Register(c)
	return c, nil
}

// Corridor returns the named corridor.
func (m *Manager) Corridor(name string) (*Corridor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.corridors[strings.ToUpper(name)]
	return c, ok
}

// Summaries lists the registered corridors by name.
func (m *Manager) Summaries() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.corridors))
	for _, c := range m.corridors {
		out = append(out, c.Summary())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Manager) trainCodeCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.trainCodes)
}

// TrainCode returns the numeric code for a train number.
func (m *Manager) TrainCode(train string) (string, bool) {
	if strings.TrimSpace(train) == "" {
		return "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	code, ok := m.trainCodes[NormalizeTrainNumber(train)]
	return code, ok
}

// TrainHalts returns the nominated halts of a fast train.
func (m *Manager) TrainHalts(train string) (TrainHalts, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.fastHalts[NormalizeTrainNumber(train)]
	return h, ok
}

// ResolveTrain resolves a train number to its corridor. An unknown train is
// reported with ok=false rather than an error.
func (m *Manager) ResolveTrain(train, from, to string) (Info, bool) {
	code, ok := m.TrainCode(train)
	if !ok {
		return Info{}, false
	}
	return Resolve(code, from, to)
}

// KMTable returns official station positions in meters for a class. A
// km_<class>.json file in the data directory overrides the corridor's own
// first-record positions station by station.
func (m *Manager) KMTable(c *Corridor, class Class) map[string]float64 {
	table := c.KMMap()
	override, err := m.kmOverride(class)
	if err != nil {
		monitoring.Logf("corridor: ignoring km table for %s: %v", class, err)
		return table
	}
	for station, km := range override {
		if c.Has(station) {
			table[NormalizeStation(station)] = km
		}
	}
	return table
}

func (m *Manager) kmOverride(class Class) (map[string]float64, error) {
	m.mu.RLock()
	cached, ok := m.kmTables[class]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	f, err := m.open("km_" + string(class) + ".json")
	if err != nil {
		return nil, err
	}
	table := map[string]float64{}
	if f != nil {
		defer f.Close()
		if err := json.NewDecoder(io.LimitReader(f, maxKMTableBytes)).Decode(&table); err != nil {
			return nil, fmt.Errorf("failed to parse km table: %w", err)
		}
	}

	m.mu.Lock()
	m.kmTables[class] = table
	m.mu.Unlock()
	return table, nil
}
