// Package store persists completed analyses to SQLite so a location's
// busyness can be charted over time. One append-only table; the capped
// per-box payloads stay in the API response and are not persisted.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/beachwatch/go-crowd/engine"
	"github.com/beachwatch/go-crowd/score"
)

// timeLayout is fixed width so the lexical order of stored timestamps is
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		captured_at TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		person_count INTEGER NOT NULL,
		method TEXT NOT NULL,
		confidence_min REAL NOT NULL,
		confidence_max REAL NOT NULL,
		confidence_avg REAL NOT NULL,
		high_confidence INTEGER NOT NULL,
		medium_confidence INTEGER NOT NULL,
		low_confidence INTEGER NOT NULL,
		density REAL NOT NULL,
		busyness_score INTEGER NOT NULL,
		busyness_level TEXT NOT NULL,
		area_sqm REAL NOT NULL,
		tile_count INTEGER NOT NULL,
		invocations INTEGER NOT NULL,
		failures_absorbed INTEGER NOT NULL,
		fallback_used INTEGER NOT NULL,
		fallback_reason TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS analyses_location_time ON analyses(location, captured_at);
`

// Store is the analysis history database.
type Store struct {
	*sql.DB
}

// Open opens or creates the database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening database %s", path)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating schema in %s", path)
	}

	return &Store{db}, nil
}

// Insert persists one analysis record.
func (s *Store) Insert(ctx context.Context, rec *engine.Record) error {
	if rec == nil {
		return nil
	}

	stmt := `INSERT INTO analyses (
			id, location, captured_at, width, height, person_count, method,
			confidence_min, confidence_max, confidence_avg,
			high_confidence, medium_confidence, low_confidence,
			density, busyness_score, busyness_level, area_sqm,
			tile_count, invocations, failures_absorbed,
			fallback_used, fallback_reason, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.ExecContext(ctx, stmt,
		rec.ID, rec.Location, rec.Timestamp.UTC().Format(timeLayout),
		rec.Width, rec.Height, rec.PersonCount, rec.Method,
		rec.Confidence.Min, rec.Confidence.Max, rec.Confidence.Avg,
		rec.Distribution.High, rec.Distribution.Medium, rec.Distribution.Low,
		rec.Busyness.Density, rec.Busyness.Score, string(rec.Busyness.Level), rec.AreaSqm,
		rec.TileCount, rec.Invocations, rec.FailuresAbsorbed,
		rec.FallbackUsed, rec.FallbackReason, rec.DurationMS,
	)
	if err != nil {
		return errors.Wrapf(err, "inserting analysis %s", rec.ID)
	}
	return nil
}

// Recent returns the newest records, newest first. An empty location
// matches every location. A non-positive limit defaults to 20.
func (s *Store) Recent(ctx context.Context, location string, limit int) ([]engine.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, location, captured_at, width, height, person_count, method,
			confidence_min, confidence_max, confidence_avg,
			high_confidence, medium_confidence, low_confidence,
			density, busyness_score, busyness_level, area_sqm,
			tile_count, invocations, failures_absorbed,
			fallback_used, fallback_reason, duration_ms
		FROM analyses`
	var args []interface{}
	if location != "" {
		query += " WHERE location = ?"
		args = append(args, location)
	}
	query += " ORDER BY captured_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying analyses")
	}
	defer rows.Close()

	var records []engine.Record
	for rows.Next() {
		var rec engine.Record
		var captured, level string
		if err := rows.Scan(
			&rec.ID, &rec.Location, &captured, &rec.Width, &rec.Height,
			&rec.PersonCount, &rec.Method,
			&rec.Confidence.Min, &rec.Confidence.Max, &rec.Confidence.Avg,
			&rec.Distribution.High, &rec.Distribution.Medium, &rec.Distribution.Low,
			&rec.Busyness.Density, &rec.Busyness.Score, &level, &rec.AreaSqm,
			&rec.TileCount, &rec.Invocations, &rec.FailuresAbsorbed,
			&rec.FallbackUsed, &rec.FallbackReason, &rec.DurationMS,
		); err != nil {
			return nil, errors.Wrap(err, "scanning analysis row")
		}
		rec.Busyness.Level = score.Level(level)
		ts, err := time.Parse(timeLayout, captured)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing captured_at of %s", rec.ID)
		}
		rec.Timestamp = ts
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading analyses")
	}

	return records, nil
}
