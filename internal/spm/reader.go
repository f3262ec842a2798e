package spm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrEmptyLog is returned when an SPM file has no rows.
	ErrEmptyLog = errors.New("spm log is empty")
	// ErrMissingColumns is returned when the date, speed or distance column
	// cannot be located in the header.
	ErrMissingColumns = errors.New("spm log is missing required columns")
)

type columns struct {
	date, time, speed, distance int
}

// ReadCSVFile opens path and reads it with ReadCSV.
func ReadCSVFile(path string) ([]RawSample, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		return nil, fmt.Errorf("unsupported spm file type %q (only .csv)", ext)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spm file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads an SPM log. Files either carry a header row, located by
// case-insensitive column names, or are headerless with Date, Speed and
// Distance in the first three columns. When no separate time column exists
// the date column is split into date and time.
func ReadCSV(r io.Reader) ([]RawSample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse spm csv: %w", err)
	}
	rows = dropBlankRows(rows)
	if len(rows) == 0 {
		return nil, ErrEmptyLog
	}

	var cols columns
	body := rows
	if looksHeaderless(rows[0]) {
		cols = columns{date: 0, time: -1, speed: 1, distance: 2}
	} else {
		cols, err = locateColumns(rows[0])
		if err != nil {
			return nil, err
		}
		body = rows[1:]
	}

	out := make([]RawSample, 0, len(body))
	for _, row := range body {
		rs := RawSample{
			Speed:    cell(row, cols.speed),
			Distance: cell(row, cols.distance),
		}
		if cols.time >= 0 {
			rs.Date = cell(row, cols.date)
			rs.Time = cell(row, cols.time)
		} else {
			rs.Date, rs.Time = splitDateTime(cell(row, cols.date))
		}
		out = append(out, rs)
	}
	return out, nil
}

func dropBlankRows(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}

func looksHeaderless(first []string) bool {
	if len(first) < 2 {
		return false
	}
	if _, ok := parseNumber(first[1]); !ok {
		return false
	}
	if len(first) > 2 {
		if _, ok := parseNumber(first[2]); !ok {
			return false
		}
	}
	return true
}

func locateColumns(header []string) (columns, error) {
	cols := columns{date: -1, time: -1, speed: -1, distance: -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case cols.date < 0 && strings.Contains(name, "date"):
			cols.date = i
		case cols.time < 0 && strings.Contains(name, "time") && !strings.Contains(name, "date"):
			cols.time = i
		case cols.speed < 0 && strings.Contains(name, "speed"):
			cols.speed = i
		case cols.distance < 0 && strings.Contains(name, "dist"):
			cols.distance = i
		}
	}
	if cols.date < 0 || cols.speed < 0 || cols.distance < 0 {
		return cols, fmt.Errorf("%w: found %v, need at least date, speed, distance", ErrMissingColumns, header)
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// splitDateTime separates a combined timestamp cell. Cells that do not parse
// are handed on whole as the time so that Clean can decide.
func splitDateTime(v string) (date, clock string) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), t.Format("15:04:05")
		}
	}
	return "", v
}
