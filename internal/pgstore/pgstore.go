// Package pgstore keeps analysed runs in PostgreSQL. It implements the same
// RunStore contract as the SQLite store and is selected when DATABASE_URL is
// set.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jaynair0405/sub-spm/internal/analysis"
	"github.com/jaynair0405/sub-spm/internal/db"
	"github.com/jaynair0405/sub-spm/internal/events"
	"github.com/jaynair0405/sub-spm/internal/monitoring"
	"github.com/jaynair0405/sub-spm/internal/timeutil"
)

//go:embed schema.sql
var schema string

// Store is a Postgres-backed db.RunStore.
type Store struct {
	pool  *pgxpool.Pool
	clock timeutil.Clock
}

var _ db.RunStore = (*Store)(nil)

// Open connects to databaseURL and creates any missing tables.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{pool: pool, clock: timeutil.RealClock{}}, nil
}

// SetClock replaces the clock used to stamp stored runs.
func (s *Store) SetClock(c timeutil.Clock) { s.clock = c }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// parseID maps ids that cannot be UUIDs onto ErrRunNotFound.
func parseID(id string) (uuid.UUID, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", db.ErrRunNotFound, id)
	}
	return u, nil
}

const runColumns = `
	run_id::text, created_at, to_char(run_date, 'YYYY-MM-DD'), filename, train_number, train_class,
	corridor, direction, from_station, to_station, staff_id, notes,
	distance_unit, row_count, max_speed, avg_speed, total_distance_km,
	duration_s, halt_count, matched_halts, violation_count, warnings`

func scanRun(row pgx.Row) (db.Run, error) {
	var r db.Run
	err := row.Scan(
		&r.ID, &r.CreatedAt, &r.RunDate, &r.Filename, &r.TrainNumber, &r.TrainClass,
		&r.Corridor, &r.Direction, &r.FromStation, &r.ToStation, &r.StaffID, &r.Notes,
		&r.DistanceUnit, &r.Rows, &r.MaxSpeed, &r.AvgSpeed, &r.TotalDistanceKM,
		&r.Duration, &r.HaltCount, &r.MatchedHalts, &r.ViolationCount, &r.Warnings,
	)
	r.CreatedAt = r.CreatedAt.UTC()
	return r, err
}

// SaveRun stores a result with its points and events in one transaction.
// Points are written with COPY.
func (s *Store) SaveRun(ctx context.Context, res *analysis.Result) (string, error) {
	id := uuid.New()
	run := db.NewRun(id.String(), s.clock.Now(), res)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO runs (
		run_id, created_at, run_date, filename, train_number, train_class,
		corridor, direction, from_station, to_station, staff_id, notes,
		distance_unit, row_count, max_speed, avg_speed, total_distance_km,
		duration_s, halt_count, matched_halts, violation_count, warnings
	) VALUES ($1, $2, $3::text::date, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		id, run.CreatedAt, run.RunDate, run.Filename, run.TrainNumber, run.TrainClass,
		run.Corridor, run.Direction, run.FromStation, run.ToStation, run.StaffID, run.Notes,
		run.DistanceUnit, run.Rows, run.MaxSpeed, run.AvgSpeed, run.TotalDistanceKM,
		run.Duration, run.HaltCount, run.MatchedHalts, run.ViolationCount, run.Warnings,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	points := db.NewPoints(res)
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"points"},
		[]string{"run_id", "seq", "clock", "timestamp_s", "speed", "distance_step", "cumulative_distance", "psr"},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			p := points[i]
			return []any{id, p.Seq, p.Clock, p.Timestamp, p.Speed, p.Distance, p.Cumulative, p.PSR}, nil
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to copy points: %w", err)
	}

	batch := eventBatch(id, run.TrainClass, res)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return "", fmt.Errorf("failed to insert events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	monitoring.Logf("pgstore: stored run %s (%d points)", run.ID, len(points))
	return run.ID, nil
}

func eventBatch(id uuid.UUID, class string, res *analysis.Result) *pgx.Batch {
	b := &pgx.Batch{}
	for _, w := range res.PlatformEntries {
		b.Queue(`INSERT INTO station_windows (
			run_id, station, section, train_class, halt_km, platform_length_km, entry_km,
			entry_speed, mid_speed, one_coach_speed, entry_gap_m, mid_gap_m, one_coach_gap_m
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			id, w.Station, w.Section, class, w.HaltKM, w.PlatformLengthKM, w.EntryKM,
			w.EntrySpeed, w.MidPlatformSpeed, w.OneCoachSpeed, w.EntryGapM, w.MidGapM, w.OneCoachGapM)
	}
	for _, e := range res.Overspeed {
		b.Queue(`INSERT INTO overspeed_events (
			run_id, start_index, end_index, start_time, end_time, start_clock, end_clock,
			start_km, end_km, samples, max_speed, max_excess, psr, threshold
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			id, e.StartIndex, e.EndIndex, e.StartTime, e.EndTime, e.StartClock, e.EndClock,
			e.StartKM, e.EndKM, e.Samples, e.MaxSpeed, e.MaxExcess, e.PSR, e.Threshold)
	}
	for _, t := range res.BrakeFeel {
		b.Queue(`INSERT INTO brake_tests (
			run_id, start_index, end_index, max_speed_index, braking_start_index,
			lowest_speed_index, recovery_index, start_speed, max_speed, braking_start_speed,
			lowest_speed, recovery_speed, speed_drop, duration_s, braking_km, halted
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			id, t.StartIndex, t.EndIndex, t.MaxSpeedIndex, t.BrakingStartIndex,
			t.LowestSpeedIndex, t.RecoveryIndex, t.StartSpeed, t.MaxSpeed, t.BrakingStartSpeed,
			t.LowestSpeed, t.RecoverySpeed, t.SpeedDrop, t.Duration, t.BrakingKM, t.Halted)
	}
	return b
}

// ListRuns returns the most recently stored runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]db.Run, error) {
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []db.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its events.
func (s *Store) GetRun(ctx context.Context, id string) (*db.RunDetail, error) {
	u, err := parseID(id)
	if err != nil {
		return nil, err
	}
	run, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = $1`, u))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", db.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	d := &db.RunDetail{Run: run}
	d.StationWindows, err = collect(ctx, s.pool, `SELECT
		station, section, halt_km, platform_length_km, entry_km,
		entry_speed, mid_speed, one_coach_speed, entry_gap_m, mid_gap_m, one_coach_gap_m
		FROM station_windows WHERE run_id = $1 ORDER BY halt_km`, u,
		func(row pgx.CollectableRow) (events.PlatformEntry, error) {
			var w events.PlatformEntry
			err := row.Scan(&w.Station, &w.Section, &w.HaltKM, &w.PlatformLengthKM, &w.EntryKM,
				&w.EntrySpeed, &w.MidPlatformSpeed, &w.OneCoachSpeed, &w.EntryGapM, &w.MidGapM, &w.OneCoachGapM)
			return w, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get station windows: %w", err)
	}
	d.Overspeed, err = collect(ctx, s.pool, `SELECT
		start_index, end_index, start_time, end_time, start_clock, end_clock,
		start_km, end_km, samples, max_speed, max_excess, psr, threshold
		FROM overspeed_events WHERE run_id = $1 ORDER BY start_index`, u,
		func(row pgx.CollectableRow) (events.OverspeedEvent, error) {
			var e events.OverspeedEvent
			err := row.Scan(&e.StartIndex, &e.EndIndex, &e.StartTime, &e.EndTime, &e.StartClock, &e.EndClock,
				&e.StartKM, &e.EndKM, &e.Samples, &e.MaxSpeed, &e.MaxExcess, &e.PSR, &e.Threshold)
			return e, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get overspeed events: %w", err)
	}
	d.BrakeTests, err = collect(ctx, s.pool, `SELECT
		start_index, end_index, max_speed_index, braking_start_index,
		lowest_speed_index, recovery_index, start_speed, max_speed, braking_start_speed,
		lowest_speed, recovery_speed, speed_drop, duration_s, braking_km, halted
		FROM brake_tests WHERE run_id = $1 ORDER BY start_index`, u,
		func(row pgx.CollectableRow) (events.BrakeFeelTest, error) {
			var b events.BrakeFeelTest
			err := row.Scan(&b.StartIndex, &b.EndIndex, &b.MaxSpeedIndex, &b.BrakingStartIndex,
				&b.LowestSpeedIndex, &b.RecoveryIndex, &b.StartSpeed, &b.MaxSpeed, &b.BrakingStartSpeed,
				&b.LowestSpeed, &b.RecoverySpeed, &b.SpeedDrop, &b.Duration, &b.BrakingKM, &b.Halted)
			return b, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get brake tests: %w", err)
	}
	return d, nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, id uuid.UUID, fn pgx.RowToFunc[T]) ([]T, error) {
	rows, err := pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, fn)
	if out == nil {
		out = []T{}
	}
	return out, err
}

// GetPoints returns a run's samples in order.
func (s *Store) GetPoints(ctx context.Context, id string) ([]db.Point, error) {
	u, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM runs WHERE run_id = $1)`, u).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", db.ErrRunNotFound, id)
	}

	points, err := collect(ctx, s.pool, `SELECT
		seq, clock, timestamp_s, speed, distance_step, cumulative_distance, psr
		FROM points WHERE run_id = $1 ORDER BY seq`, u,
		func(row pgx.CollectableRow) (db.Point, error) {
			var p db.Point
			err := row.Scan(&p.Seq, &p.Clock, &p.Timestamp, &p.Speed, &p.Distance, &p.Cumulative, &p.PSR)
			return p, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get points: %w", err)
	}
	return points, nil
}

// DeleteRun removes a run; its points and events go with it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	u, err := parseID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM runs WHERE run_id = $1`, u)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", db.ErrRunNotFound, id)
	}
	return nil
}

// FindRun returns the newest run for the same date, train and endpoints.
func (s *Store) FindRun(ctx context.Context, date, train, from, to string) (*db.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs
		WHERE run_date = $1::text::date AND train_number = $2 AND from_station = $3 AND to_station = $4
		ORDER BY created_at DESC LIMIT 1`, date, train, from, to))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run: %w", err)
	}
	return &r, nil
}

// BrakingHistory lists stored approaches to a station, newest first.
func (s *Store) BrakingHistory(ctx context.Context, q db.BrakingQuery) ([]db.BrakingRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = db.DefaultListLimit
	}
	rows, err := s.pool.Query(ctx, `SELECT
		r.run_id::text, to_char(r.run_date, 'YYYY-MM-DD'), r.train_number, r.direction, w.train_class,
		w.station, w.section, w.halt_km, w.platform_length_km, w.entry_km,
		w.entry_speed, w.mid_speed, w.one_coach_speed, w.entry_gap_m, w.mid_gap_m, w.one_coach_gap_m
		FROM station_windows w JOIN runs r ON r.run_id = w.run_id
		WHERE w.station = $1
		  AND ($2::text = '' OR r.direction = $2::text)
		  AND ($3::text = '' OR r.run_date >= $3::text::date)
		  AND ($4::text = '' OR r.run_date <= $4::text::date)
		ORDER BY r.run_date DESC, r.created_at DESC
		LIMIT $5`,
		q.Station, q.Direction, q.FromDate, q.ToDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get braking history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (db.BrakingRecord, error) {
		var rec db.BrakingRecord
		w := &rec.PlatformEntry
		err := row.Scan(&rec.RunID, &rec.RunDate, &rec.TrainNumber, &rec.Direction, &rec.TrainClass,
			&w.Station, &w.Section, &w.HaltKM, &w.PlatformLengthKM, &w.EntryKM,
			&w.EntrySpeed, &w.MidPlatformSpeed, &w.OneCoachSpeed, &w.EntryGapM, &w.MidGapM, &w.OneCoachGapM)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan braking history: %w", err)
	}
	if out == nil {
		out = []db.BrakingRecord{}
	}
	return out, nil
}
