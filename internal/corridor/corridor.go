// Package corridor holds the reference geometry of suburban routes: the
// ordered station list of each directional corridor, the historical
// inter-station distance (ISD) records measured on it, and the lookup tables
// that map a train number onto a corridor.
package corridor

import (
	"errors"
	"strings"
)

// ErrNoStations is returned for a corridor without any station columns.
var ErrNoStations = errors.New("corridor has no stations")

// Record is one measured traversal of a corridor. ISD[i] is the distance in
// meters from station i-1 to station i; a zero means the train did not stop
// at station i on that run. Cumulative[i] is the running sum of ISD.
type Record struct {
	ID         string    `json:"id"`
	ISD        []float64 `json:"isd"`
	Cumulative []float64 `json:"cumulative"`
}

// NewRecord builds a record from its ISD row, padding or truncating it to n
// stations.
func NewRecord(id string, isd []float64, n int) Record {
	r := Record{
		ID:         id,
		ISD:        make([]float64, n),
		Cumulative: make([]float64, n),
	}
	copy(r.ISD, isd)
	running := 0.0
	for i, v := range r.ISD {
		running += v
		r.Cumulative[i] = running
	}
	return r
}

// Stops reports whether the record has a measured stop at station index i.
// The first station never carries an ISD and always counts as a stop.
func (r Record) Stops(i int) bool {
	if i == 0 {
		return true
	}
	return i < len(r.ISD) && r.ISD[i] != 0
}

// Corridor is a named directional route. It is read-only once loaded and may
// be shared between concurrent analyses.
type Corridor struct {
	Name     string   `json:"name"`
	Stations []string `json:"stations"`
	Records  []Record `json:"records"`

	index map[string]int
}

// New builds a corridor and its station index. Station codes are normalised
// to upper case; a repeated code keeps its first position.
func New(name string, stations []string, records []Record) (*Corridor, error) {
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	c := &Corridor{
		Name:     strings.ToUpper(strings.TrimSpace(name)),
		Stations: make([]string, len(stations)),
		Records:  records,
		index:    make(map[string]int, len(stations)),
	}
	for i, s := range stations {
		code := NormalizeStation(s)
		c.Stations[i] = code
		if _, dup := c.index[code]; !dup {
			c.index[code] = i
		}
	}
	return c, nil
}

// NormalizeStation trims and upper-cases a station code.
func NormalizeStation(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Index returns the position of station in the corridor, or -1.
func (c *Corridor) Index(station string) int {
	if c == nil {
		return -1
	}
	if i, ok := c.index[NormalizeStation(station)]; ok {
		return i
	}
	return -1
}

// Has reports whether the corridor contains station.
func (c *Corridor) Has(station string) bool {
	return c.Index(station) >= 0
}

// KMMap returns each station's absolute position in meters, taken from the
// cumulative distances of the first record.
func (c *Corridor) KMMap() map[string]float64 {
	out := make(map[string]float64, len(c.Stations))
	if len(c.Records) == 0 {
		return out
	}
	cum := c.Records[0].Cumulative
	for i, s := range c.Stations {
		if i < len(cum) {
			if _, seen := out[s]; !seen {
				out[s] = cum[i]
			}
		}
	}
	return out
}

// Slice returns the stations from `from` to `to` inclusive, reversed when to
// comes before from. An empty from means the first station and an empty or
// unknown to means the last. ok is false when from is set but unknown.
func (c *Corridor) Slice(from, to string) (stations []string, reverse bool, ok bool) {
	start := 0
	if from != "" {
		if start = c.Index(from); start < 0 {
			return nil, false, false
		}
	}
	end := len(c.Stations) - 1
	if to != "" {
		if i := c.Index(to); i >= 0 {
			end = i
		}
	}
	if end >= start {
		out := make([]string, end-start+1)
		copy(out, c.Stations[start:end+1])
		return out, false, true
	}
	out := make([]string, 0, start-end+1)
	for i := start; i >= end; i-- {
		out = append(out, c.Stations[i])
	}
	return out, true, true
}

// Summary is the JSON shape used when listing corridors.
type Summary struct {
	Name         string `json:"name"`
	StationCount int    `json:"station_count"`
	RecordCount  int    `json:"record_count"`
	First        string `json:"first_station"`
	Last         string `json:"last_station"`
}

// Summary describes the corridor without its records.
func (c *Corridor) Summary() Summary {
	return Summary{
		Name:         c.Name,
		StationCount: len(c.Stations),
		RecordCount:  len(c.Records),
		First:        c.Stations[0],
		Last:         c.Stations[len(c.Stations)-1],
	}
}
