// Package report renders analysed runs as charts and CSV. Both a fresh
// analysis.Result and a stored run reduce to a Series first.
package report

import (
	"fmt"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/units"
)

// Point is one sample on the distance axis. KM is kilometers from the start
// of the trimmed run.
type Point struct {
	Time  string
	KM    float64
	Speed float64
	PSR   *float64
}

// Marker is a station placed on the distance axis.
type Marker struct {
	Station    string
	KM         float64
	EntrySpeed *float64
}

// Band is a stretch of track, used for overspeed events.
type Band struct {
	StartKM float64
	EndKM   float64
	Label   string
}

// Series is everything a chart needs.
type Series struct {
	Title     string
	Subtitle  string
	Points    []Point
	Markers   []Marker
	Overspeed []Band
}

// MaxSpeed returns the highest speed or limit in the series.
func (s Series) MaxSpeed() float64 {
	m := 0.0
	for _, p := range s.Points {
		m = max(m, p.Speed)
		if p.PSR != nil {
			m = max(m, *p.PSR)
		}
	}
	return m
}

func title(train, from, to string) string {
	t := "SPM run"
	if train != "" {
		t += " " + train
	}
	if from != "" && to != "" {
		t += fmt.Sprintf(" %s to %s", from, to)
	}
	return t
}

// FromResult builds a series from a fresh analysis.
func FromResult(res *analysis.Result) Series {
	scale := res.Scale()
	s := Series{
		Title:  title(res.Request.TrainNumber, res.From, res.To),
		Points: make([]Point, len(res.Samples)),
	}
	if res.Corridor != nil {
		s.Subtitle = fmt.Sprintf("%s (%s)", res.Corridor.Corridor, res.Class)
	}
	for i, smp := range res.Samples {
		p := Point{Time: smp.Time, KM: scale.ToKilometers(smp.CumulativeDistance), Speed: smp.Speed}
		if i < len(res.PSR) && res.PSR[i].OK {
			v := res.PSR[i].KMH
			p.PSR = &v
		}
		s.Points[i] = p
	}
	for _, m := range res.Markers {
		s.Markers = append(s.Markers, Marker{Station: m.Station, KM: scale.ToKilometers(m.Distance), EntrySpeed: m.EntrySpeed})
	}
	for _, e := range res.Overspeed {
		s.Overspeed = append(s.Overspeed, Band{
			StartKM: scale.ToKilometers(e.StartKM),
			EndKM:   scale.ToKilometers(e.EndKM),
			Label:   fmt.Sprintf("+%.0f km/h", e.MaxExcess),
		})
	}
	return s
}

// FromStored builds a series from a persisted run. Station markers come from
// the stored platform windows.
func FromStored(run *db.RunDetail, points []db.Point) Series {
	scale := units.Kilometers
	if run.DistanceUnit == units.Meters.String() {
		scale = units.Meters
	}
	s := Series{
		Title:    title(run.TrainNumber, run.FromStation, run.ToStation),
		Subtitle: run.RunDate,
		Points:   make([]Point, len(points)),
	}
	if run.Corridor != "" {
		s.Subtitle = fmt.Sprintf("%s %s (%s)", run.RunDate, run.Corridor, run.TrainClass)
	}
	for i, p := range points {
		s.Points[i] = Point{Time: p.Clock, KM: scale.ToKilometers(p.Cumulative), Speed: p.Speed, PSR: p.PSR}
	}
	for _, w := range run.StationWindows {
		v := w.EntrySpeed
		s.Markers = append(s.Markers, Marker{Station: w.Station, KM: w.HaltKM, EntrySpeed: &v})
	}
	for _, e := range run.Overspeed {
		s.Overspeed = append(s.Overspeed, Band{
			StartKM: scale.ToKilometers(e.StartKM),
			EndKM:   scale.ToKilometers(e.EndKM),
			Label:   fmt.Sprintf("+%.0f km/h", e.MaxExcess),
		})
	}
	return s
}
