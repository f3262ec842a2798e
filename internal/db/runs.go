package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/events"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
)

var _ RunStore = (*DB)(nil)

const runColumns = `
	run_id, created_at, run_date, filename, train_number, train_class,
	corridor, direction, from_station, to_station, staff_id, notes,
	distance_unit, row_count, max_speed, avg_speed, total_distance_km,
	duration_s, halt_count, matched_halts, violation_count, warnings`

// SaveRun stores a result with its points and events in one transaction
// and returns the new run id.
func (db *DB) SaveRun(ctx context.Context, res *analysis.Result) (string, error) {
	run := NewRun(uuid.NewString(), db.clock.Now(), res)
	warnings, err := json.Marshal(run.Warnings)
	if err != nil {
		return "", fmt.Errorf("failed to encode warnings: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Unix(), run.RunDate, run.Filename, run.TrainNumber, run.TrainClass,
		run.Corridor, run.Direction, run.FromStation, run.ToStation, run.StaffID, run.Notes,
		run.DistanceUnit, run.Rows, run.MaxSpeed, run.AvgSpeed, run.TotalDistanceKM,
		run.Duration, run.HaltCount, run.MatchedHalts, run.ViolationCount, string(warnings),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertPoints(ctx, tx, run.ID, NewPoints(res)); err != nil {
		return "", err
	}
	if err := insertEvents(ctx, tx, run, res); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	monitoring.Logf("db: stored run %s (%d points)", run.ID, len(res.Samples))
	return run.ID, nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, id string, points []Point) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO points (
		run_id, seq, clock, timestamp_s, speed, distance_step, cumulative_distance, psr
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare point insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, id, p.Seq, p.Clock, p.Timestamp, p.Speed, p.Distance, p.Cumulative, p.PSR); err != nil {
			return fmt.Errorf("failed to insert point %d: %w", p.Seq, err)
		}
	}
	return nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, run Run, res *analysis.Result) error {
	for _, w := range res.PlatformEntries {
		_, err := tx.ExecContext(ctx, `INSERT INTO station_windows (
			run_id, station, section, train_class, halt_km, platform_length_km, entry_km,
			entry_speed, mid_speed, one_coach_speed, entry_gap_m, mid_gap_m, one_coach_gap_m
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, w.Station, w.Section, run.TrainClass, w.HaltKM, w.PlatformLengthKM, w.EntryKM,
			w.EntrySpeed, w.MidPlatformSpeed, w.OneCoachSpeed, w.EntryGapM, w.MidGapM, w.OneCoachGapM,
		)
		if err != nil {
			return fmt.Errorf("failed to insert station window %s: %w", w.Station, err)
		}
	}

	for _, e := range res.Overspeed {
		_, err := tx.ExecContext(ctx, `INSERT INTO overspeed_events (
			run_id, start_index, end_index, start_time, end_time, start_clock, end_clock,
			start_km, end_km, samples, max_speed, max_excess, psr, threshold
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, e.StartIndex, e.EndIndex, e.StartTime, e.EndTime, e.StartClock, e.EndClock,
			e.StartKM, e.EndKM, e.Samples, e.MaxSpeed, e.MaxExcess, e.PSR, e.Threshold,
		)
		if err != nil {
			return fmt.Errorf("failed to insert overspeed event: %w", err)
		}
	}

	for _, b := range res.BrakeFeel {
		_, err := tx.ExecContext(ctx, `INSERT INTO brake_tests (
			run_id, start_index, end_index, max_speed_index, braking_start_index,
			lowest_speed_index, recovery_index, start_speed, max_speed, braking_start_speed,
			lowest_speed, recovery_speed, speed_drop, duration_s, braking_km, halted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, b.StartIndex, b.EndIndex, b.MaxSpeedIndex, b.BrakingStartIndex,
			b.LowestSpeedIndex, b.RecoveryIndex, b.StartSpeed, b.MaxSpeed, b.BrakingStartSpeed,
			b.LowestSpeed, b.RecoverySpeed, b.SpeedDrop, b.Duration, b.BrakingKM, b.Halted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert brake test: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r         Run
		createdAt int64
		warnings  string
	)
	err := s.Scan(
		&r.ID, &createdAt, &r.RunDate, &r.Filename, &r.TrainNumber, &r.TrainClass,
		&r.Corridor, &r.Direction, &r.FromStation, &r.ToStation, &r.StaffID, &r.Notes,
		&r.DistanceUnit, &r.Rows, &r.MaxSpeed, &r.AvgSpeed, &r.TotalDistanceKM,
		&r.Duration, &r.HaltCount, &r.MatchedHalts, &r.ViolationCount, &warnings,
	)
	if err != nil {
		return r, err
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	if err := json.Unmarshal([]byte(warnings), &r.Warnings); err != nil {
		return r, fmt.Errorf("failed to decode warnings of run %s: %w", r.ID, err)
	}
	return r, nil
}

// ListRuns returns the most recently stored runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its station windows, overspeed events and
// brake tests.
func (db *DB) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	run, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	d := &RunDetail{Run: run}
	if d.StationWindows, err = db.stationWindows(ctx, id); err != nil {
		return nil, err
	}
	if d.Overspeed, err = db.overspeedEvents(ctx, id); err != nil {
		return nil, err
	}
	if d.BrakeTests, err = db.brakeTests(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

const windowColumns = `station, section, halt_km, platform_length_km, entry_km,
	entry_speed, mid_speed, one_coach_speed, entry_gap_m, mid_gap_m, one_coach_gap_m`

func scanWindow(s scanner, extra ...any) (events.PlatformEntry, error) {
	var w events.PlatformEntry
	dest := append(extra,
		&w.Station, &w.Section, &w.HaltKM, &w.PlatformLengthKM, &w.EntryKM,
		&w.EntrySpeed, &w.MidPlatformSpeed, &w.OneCoachSpeed, &w.EntryGapM, &w.MidGapM, &w.OneCoachGapM,
	)
	err := s.Scan(dest...)
	return w, err
}

func (db *DB) stationWindows(ctx context.Context, id string) ([]events.PlatformEntry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+windowColumns+` FROM station_windows WHERE run_id = ? ORDER BY halt_km`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get station windows: %w", err)
	}
	defer rows.Close()

	out := []events.PlatformEntry{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan station window: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (db *DB) overspeedEvents(ctx context.Context, id string) ([]events.OverspeedEvent, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		start_index, end_index, start_time, end_time, start_clock, end_clock,
		start_km, end_km, samples, max_speed, max_excess, psr, threshold
		FROM overspeed_events WHERE run_id = ? ORDER BY start_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get overspeed events: %w", err)
	}
	defer rows.Close()

	out := []events.OverspeedEvent{}
	for rows.Next() {
		var e events.OverspeedEvent
		if err := rows.Scan(
			&e.StartIndex, &e.EndIndex, &e.StartTime, &e.EndTime, &e.StartClock, &e.EndClock,
			&e.StartKM, &e.EndKM, &e.Samples, &e.MaxSpeed, &e.MaxExcess, &e.PSR, &e.Threshold,
		); err != nil {
			return nil, fmt.Errorf("failed to scan overspeed event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (db *DB) brakeTests(ctx context.Context, id string) ([]events.BrakeFeelTest, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		start_index, end_index, max_speed_index, braking_start_index,
		lowest_speed_index, recovery_index, start_speed, max_speed, braking_start_speed,
		lowest_speed, recovery_speed, speed_drop, duration_s, braking_km, halted
		FROM brake_tests WHERE run_id = ? ORDER BY start_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get brake tests: %w", err)
	}
	defer rows.Close()

	out := []events.BrakeFeelTest{}
	for rows.Next() {
		var b events.BrakeFeelTest
		if err := rows.Scan(
			&b.StartIndex, &b.EndIndex, &b.MaxSpeedIndex, &b.BrakingStartIndex,
			&b.LowestSpeedIndex, &b.RecoveryIndex, &b.StartSpeed, &b.MaxSpeed, &b.BrakingStartSpeed,
			&b.LowestSpeed, &b.RecoverySpeed, &b.SpeedDrop, &b.Duration, &b.BrakingKM, &b.Halted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan brake test: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetPoints returns a run's samples in order.
func (db *DB) GetPoints(ctx context.Context, id string) ([]Point, error) {
	if err := db.exists(ctx, id); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT
		seq, clock, timestamp_s, speed, distance_step, cumulative_distance, psr
		FROM points WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	defer rows.Close()

	out := []Point{}
	for rows.Next() {
		var (
			p   Point
			psr sql.NullFloat64
		)
		if err := rows.Scan(&p.Seq, &p.Clock, &p.Timestamp, &p.Speed, &p.Distance, &p.Cumulative, &psr); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		if psr.Valid {
			p.PSR = &psr.Float64
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) exists(ctx context.Context, id string) error {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to look up run: %w", err)
	}
	return nil
}

// DeleteRun removes a run; its points and events go with it.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// FindRun returns the newest run for the same date, train and endpoints.
func (db *DB) FindRun(ctx context.Context, date, train, from, to string) (*Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs
		WHERE run_date = ? AND train_number = ? AND from_station = ? AND to_station = ?
		ORDER BY created_at DESC LIMIT 1`, date, train, from, to))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	return &r, nil
}

// BrakingHistory lists stored approaches to a station, newest first.
func (db *DB) BrakingHistory(ctx context.Context, q BrakingQuery) ([]BrakingRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT
		r.run_id, r.run_date, r.train_number, r.direction, w.train_class,
		w.station, w.section, w.halt_km, w.platform_length_km, w.entry_km,
		w.entry_speed, w.mid_speed, w.one_coach_speed, w.entry_gap_m, w.mid_gap_m, w.one_coach_gap_m
		FROM station_windows w JOIN runs r ON r.run_id = w.run_id
		WHERE w.station = ?
		  AND (? = '' OR r.direction = ?)
		  AND (? = '' OR r.run_date >= ?)
		  AND (? = '' OR r.run_date <= ?)
		ORDER BY r.run_date DESC, r.created_at DESC
		LIMIT ?`,
		q.Station, q.Direction, q.Direction, q.FromDate, q.FromDate, q.ToDate, q.ToDate, limitOrDefault(q.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get braking history: %w", err)
	}
	defer rows.Close()

	out := []BrakingRecord{}
	for rows.Next() {
		var rec BrakingRecord
		rec.PlatformEntry, err = scanWindow(rows, &rec.RunID, &rec.RunDate, &rec.TrainNumber, &rec.Direction, &rec.TrainClass)
		if err != nil {
			return nil, fmt.Errorf("failed to scan braking record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
