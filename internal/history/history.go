// Package history keeps a Postgres log of completed drives.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Querier is the subset of *pgxpool.Pool the log uses; pgxmock pools satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Drive is one finished session.
type Drive struct {
	SessionID       string    `json:"session_id"`
	Username        string    `json:"username"`
	Vehicle         string    `json:"vehicle"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DistanceMeters  float64   `json:"distance_m"`
	DurationSeconds float64   `json:"duration_s"`
	Grams           int       `json:"grams"`
	Fixes           int       `json:"fixes"`
}

const schema = `
CREATE TABLE IF NOT EXISTS drive_sessions (
	session_id  TEXT PRIMARY KEY,
	username    TEXT NOT NULL,
	vehicle     TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	distance_m  DOUBLE PRECISION NOT NULL,
	duration_s  DOUBLE PRECISION NOT NULL,
	grams       INTEGER NOT NULL,
	fixes       INTEGER NOT NULL
)`

// Connect opens and pings a pool for url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// Log writes and reads drive_sessions.
type Log struct {
	db     Querier
	logger zerolog.Logger
}

// NewLog wraps db.
func NewLog(db Querier, logger zerolog.Logger) *Log {
	return &Log{db: db, logger: logger.With().Str("component", "history").Logger()}
}

// EnsureSchema creates the table if it does not exist.
func (l *Log) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating drive_sessions: %w", err)
	}
	return nil
}

// Record inserts d. Recording the same session twice keeps the first row.
func (l *Log) Record(ctx context.Context, d Drive) error {
	tag, err := l.db.Exec(ctx, `
		INSERT INTO drive_sessions
			(session_id, username, vehicle, started_at, ended_at, distance_m, duration_s, grams, fixes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id) DO NOTHING
	`, d.SessionID, d.Username, d.Vehicle, d.StartedAt, d.EndedAt, d.DistanceMeters, d.DurationSeconds, d.Grams, d.Fixes)
	if err != nil {
		return fmt.Errorf("recording drive %s: %w", d.SessionID, err)
	}
	if tag.RowsAffected() == 0 {
		l.logger.Debug().Str("session_id", d.SessionID).Msg("drive already recorded")
	}
	return nil
}

// Recent returns up to limit drives, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Drive, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.Query(ctx, `
		SELECT session_id, username, vehicle, started_at, ended_at, distance_m, duration_s, grams, fixes
		FROM drive_sessions
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	defer rows.Close()

	var drives []Drive
	for rows.Next() {
		var d Drive
		if err := rows.Scan(&d.SessionID, &d.Username, &d.Vehicle, &d.StartedAt, &d.EndedAt,
			&d.DistanceMeters, &d.DurationSeconds, &d.Grams, &d.Fixes); err != nil {
			return nil, fmt.Errorf("scanning drive: %w", err)
		}
		drives = append(drives, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing drives: %w", err)
	}
	return drives, nil
}

// TotalGramsSince sums grams for drives that ended at or after since.
func (l *Log) TotalGramsSince(ctx context.Context, since time.Time) (int, error) {
	var total int
	err := l.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(grams), 0) FROM drive_sessions WHERE ended_at >= $1`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing drives: %w", err)
	}
	return total, nil
}
