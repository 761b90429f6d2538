package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func sampleDrive() Drive {
	start := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	return Drive{
		SessionID:       "01JABCDEF",
		Username:        "User1234",
		Vehicle:         "2020 Toyota Corolla",
		StartedAt:       start,
		EndedAt:         start.Add(10 * time.Second),
		DistanceMeters:  1000,
		DurationSeconds: 10,
		Grams:           186,
		Fixes:           11,
	}
}

func TestEnsureSchema(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS drive_sessions`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, NewLog(mock, zerolog.Nop()).EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord(t *testing.T) {
	mock := newMock(t)
	d := sampleDrive()
	mock.ExpectExec(`INSERT INTO drive_sessions`).
		WithArgs(d.SessionID, d.Username, d.Vehicle, d.StartedAt, d.EndedAt, d.DistanceMeters, d.DurationSeconds, d.Grams, d.Fixes).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO drive_sessions`).
		WithArgs(d.SessionID, d.Username, d.Vehicle, d.StartedAt, d.EndedAt, d.DistanceMeters, d.DurationSeconds, d.Grams, d.Fixes).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	log := NewLog(mock, zerolog.Nop())
	require.NoError(t, log.Record(context.Background(), d))
	require.NoError(t, log.Record(context.Background(), d), "duplicate is not an error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordError(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`INSERT INTO drive_sessions`).WillReturnError(errors.New("connection reset"))

	err := NewLog(mock, zerolog.Nop()).Record(context.Background(), sampleDrive())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "01JABCDEF")
}

func TestRecent(t *testing.T) {
	mock := newMock(t)
	d := sampleDrive()
	mock.ExpectQuery(`SELECT session_id, username, vehicle`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "username", "vehicle", "started_at", "ended_at", "distance_m", "duration_s", "grams", "fixes"}).
			AddRow(d.SessionID, d.Username, d.Vehicle, d.StartedAt, d.EndedAt, d.DistanceMeters, d.DurationSeconds, d.Grams, d.Fixes))

	drives, err := NewLog(mock, zerolog.Nop()).Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []Drive{d}, drives)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTotalGramsSince(t *testing.T) {
	mock := newMock(t)
	since := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(grams\), 0\) FROM drive_sessions`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(512))

	total, err := NewLog(mock, zerolog.Nop()).TotalGramsSince(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 512, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectInvalidURL(t *testing.T) {
	pool, err := Connect(context.Background(), "invalid-url")
	require.Error(t, err)
	assert.Nil(t, pool)
}
