package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

var exportHeader = []string{"seq", "time", "distance_km", "speed", "psr", "station"}

// WriteCSV exports the series one sample per row. The station column names
// the marker nearest each sample; psr is blank where no limit applied.
func WriteCSV(w io.Writer, s Series) error {
	at := markerSamples(s)
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for i, p := range s.Points {
		limit := ""
		if p.PSR != nil {
			limit = strconv.FormatFloat(*p.PSR, 'f', -1, 64)
		}
		row := []string{
			strconv.Itoa(i),
			p.Time,
			strconv.FormatFloat(p.KM, 'f', 3, 64),
			strconv.FormatFloat(p.Speed, 'f', -1, 64),
			limit,
			at[i],
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// markerSamples maps sample indexes to the station marked there.
func markerSamples(s Series) map[int]string {
	out := make(map[int]string, len(s.Markers))
	if len(s.Points) == 0 {
		return out
	}
	for _, m := range s.Markers {
		best, bestGap := 0, -1.0
		for i, p := range s.Points {
			gap := p.KM - m.KM
			if gap < 0 {
				gap = -gap
			}
			if bestGap < 0 || gap < bestGap {
				best, bestGap = i, gap
			}
		}
		out[best] = m.Station
	}
	return out
}
