package db

import (
	"context"
	"errors"
	"time"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/events"
)

// ErrRunNotFound is returned when no stored run matches.
var ErrRunNotFound = errors.New("run not found")

// RunStore persists analysed runs. The SQLite DB and the Postgres store both
// implement it.
type RunStore interface {
	SaveRun(ctx context.Context, res *analysis.Result) (string, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id string) (*RunDetail, error)
	GetPoints(ctx context.Context, id string) ([]Point, error)
	DeleteRun(ctx context.Context, id string) error
	FindRun(ctx context.Context, date, train, from, to string) (*Run, error)
	BrakingHistory(ctx context.Context, q BrakingQuery) ([]BrakingRecord, error)
	Close() error
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 100

// Run is the stored metadata and summary of one analysed log.
type Run struct {
	ID              string    `json:"run_id"`
	CreatedAt       time.Time `json:"created_at"`
	RunDate         string    `json:"run_date"`
	Filename        string    `json:"filename"`
	TrainNumber     string    `json:"train_number"`
	TrainClass      string    `json:"train_class"`
	Corridor        string    `json:"corridor"`
	Direction       string    `json:"direction"`
	FromStation     string    `json:"from_station"`
	ToStation       string    `json:"to_station"`
	StaffID         string    `json:"staff_id"`
	Notes           string    `json:"notes"`
	DistanceUnit    string    `json:"distance_unit"`
	Rows            int       `json:"row_count"`
	MaxSpeed        float64   `json:"max_speed"`
	AvgSpeed        float64   `json:"avg_speed"`
	TotalDistanceKM float64   `json:"total_distance_km"`
	Duration        float64   `json:"duration_s"`
	HaltCount       int       `json:"halt_count"`
	MatchedHalts    int       `json:"matched_halts"`
	ViolationCount  int       `json:"violation_count"`
	Warnings        []string  `json:"warnings"`
}

// Point is one stored sample. PSR is nil where no limit applied.
type Point struct {
	Seq        int      `json:"seq"`
	Clock      string   `json:"time"`
	Timestamp  float64  `json:"timestamp"`
	Speed      float64  `json:"speed"`
	Distance   float64  `json:"distance"`
	Cumulative float64  `json:"cumulative_distance"`
	PSR        *float64 `json:"psr"`
}

// RunDetail is a run with its detected events.
type RunDetail struct {
	Run
	StationWindows []events.PlatformEntry  `json:"station_windows"`
	Overspeed      []events.OverspeedEvent `json:"overspeed_events"`
	BrakeTests     []events.BrakeFeelTest  `json:"brake_tests"`
}

// BrakingQuery selects station windows for the braking history of one
// station. Empty fields do not filter; dates are inclusive YYYY-MM-DD.
type BrakingQuery struct {
	Station   string
	Direction string
	FromDate  string
	ToDate    string
	Limit     int
}

// BrakingRecord is one approach to a station.
type BrakingRecord struct {
	RunID       string `json:"run_id"`
	RunDate     string `json:"run_date"`
	TrainNumber string `json:"train_number"`
	Direction   string `json:"direction"`
	TrainClass  string `json:"train_class"`
	events.PlatformEntry
}

// NewRun builds the stored form of an analysis result.
func NewRun(id string, createdAt time.Time, res *analysis.Result) Run {
	r := Run{
		ID:              id,
		CreatedAt:       createdAt.UTC(),
		RunDate:         runDate(res),
		Filename:        res.Request.Filename,
		TrainNumber:     res.Request.TrainNumber,
		TrainClass:      string(res.Class),
		FromStation:     res.From,
		ToStation:       res.To,
		StaffID:         res.Request.StaffID,
		Notes:           res.Request.Notes,
		DistanceUnit:    res.Unit,
		Rows:            res.Summary.Rows,
		MaxSpeed:        res.Summary.MaxSpeed,
		AvgSpeed:        res.Summary.AvgSpeed,
		TotalDistanceKM: res.Summary.TotalDistanceKM,
		Duration:        res.Summary.Duration,
		HaltCount:       res.Summary.HaltCount,
		MatchedHalts:    res.Summary.MatchedHalts,
		ViolationCount:  res.ViolationSummary.Total,
		Warnings:        res.Warnings,
	}
	if res.Corridor != nil {
		r.Corridor = res.Corridor.Corridor
		r.Direction = string(res.Corridor.Direction)
	}
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return r
}

// runDate is the log's own date when it has one, else the analysis date.
func runDate(res *analysis.Result) string {
	for _, s := range res.Samples {
		if s.Date == "" {
			continue
		}
		for _, layout := range []string{"2006-01-02", "02/01/2006", "02-01-2006", "2006/01/02"} {
			if t, err := time.Parse(layout, s.Date); err == nil {
				return t.Format(time.DateOnly)
			}
		}
		break
	}
	return res.AnalyzedAt.UTC().Format(time.DateOnly)
}

// NewPoints builds the stored samples of an analysis result.
func NewPoints(res *analysis.Result) []Point {
	out := make([]Point, len(res.Samples))
	for i, s := range res.Samples {
		p := Point{
			Seq:        i,
			Clock:      s.Time,
			Timestamp:  s.Timestamp,
			Speed:      s.Speed,
			Distance:   s.Distance,
			Cumulative: s.CumulativeDistance,
		}
		if i < len(res.PSR) && res.PSR[i].OK {
			v := res.PSR[i].KMH
			p.PSR = &v
		}
		out[i] = p
	}
	return out
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
