package spm

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const secondsPerDay = 24 * 60 * 60

var clockLayouts = []string{
	"15:04:05",
	"15:04:05.000",
	"15:04",
	"3:04:05 PM",
}

var dateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02-01-2006 15:04:05",
	"02/01/2006 15:04",
	"2006/01/02 15:04:05",
}

// parseNumber parses a telemetry number. Empty and non-finite values fail.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseClock turns a time cell into seconds. Accepted forms are wall clock
// times (optionally with a date), "T+<n>s" offsets and bare seconds.
func parseClock(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.HasPrefix(s, "T+") {
		return parseNumber(strings.TrimSuffix(s[2:], "s"))
	}
	if v, ok := parseNumber(s); ok {
		return v, true
	}
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return clockSeconds(t), true
		}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return clockSeconds(t), true
		}
	}
	return 0, false
}

func clockSeconds(t time.Time) float64 {
	return float64(t.Hour()*3600+t.Minute()*60+t.Second()) + float64(t.Nanosecond())/1e9
}

// Clean filters raw rows into a Run. Rows with a missing or unparseable speed,
// timestamp or distance are dropped, as are rows with negative speed. The
// distance delta is forced to zero whenever speed is zero, before cumulative
// distance is summed. The raw slice is never modified.
func Clean(raw []RawSample) *Run {
	run := &Run{
		Samples: make([]Sample, 0, len(raw)),
		Source:  make([]int, 0, len(raw)),
	}

	var (
		cum       float64
		base      float64
		haveBase  bool
		lastClock float64
		dayOffset float64
	)

	for i, row := range raw {
		speed, ok := parseNumber(row.Speed)
		if !ok || speed < 0 {
			run.Dropped++
			continue
		}
		clock, ok := parseClock(row.Time)
		if !ok {
			run.Dropped++
			continue
		}
		dist := 0.0
		if strings.TrimSpace(row.Distance) != "" {
			if dist, ok = parseNumber(row.Distance); !ok {
				run.Dropped++
				continue
			}
		}
		if speed == 0 {
			dist = 0
		}

		// Logs that run past midnight restart the wall clock.
		if haveBase && clock+dayOffset < lastClock-secondsPerDay/2 {
			dayOffset += secondsPerDay
		}
		clock += dayOffset
		if !haveBase {
			base = clock
			haveBase = true
		}
		lastClock = clock

		cum += dist
		run.Samples = append(run.Samples, Sample{
			Date:               strings.TrimSpace(row.Date),
			Time:               strings.TrimSpace(row.Time),
			Timestamp:          clock - base,
			Speed:              speed,
			Distance:           dist,
			CumulativeDistance: cum,
		})
		run.Source = append(run.Source, i)
	}
	return run
}
