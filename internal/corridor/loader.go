package corridor

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadFile reads a corridor CSV. The corridor is named after the file stem.
func LoadFile(path string) (*Corridor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corridor file: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	c, err := LoadCSV(name, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadCSV reads a corridor table. The header row is a record-number column
// followed by station codes; each following row is a record number followed
// by ISDs in meters. Blank or invalid cells read as zero and fully blank rows
// are skipped.
func LoadCSV(name string, r io.Reader) (*Corridor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse corridor csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("corridor %s is empty", name)
	}

	var stations []string
	for _, h := range rows[0][1:] {
		if code := NormalizeStation(h); code != "" {
			stations = append(stations, code)
		}
	}
	if len(stations) == 0 {
		return nil, ErrNoStations
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		isd := make([]float64, 0, len(stations))
		for i := 1; i < len(row) && i <= len(stations); i++ {
			isd = append(isd, safeFloat(row[i]))
		}
		records = append(records, NewRecord(strings.TrimSpace(row[0]), isd, len(stations)))
	}

	return New(name, stations, records)
}

// WriteCSV writes a corridor in the format LoadCSV reads. Zero ISDs are
// written as blank cells.
func WriteCSV(w io.Writer, c *Corridor) error {
	cw := csv.NewWriter(w)
	header := append([]string{"Record Number"}, c.Stations...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range c.Records {
		row := make([]string, 0, len(c.Stations)+1)
		row = append(row, rec.ID)
		for _, v := range rec.ISD {
			if v == 0 {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func safeFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
