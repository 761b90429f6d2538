package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rshade/carboncounter/internal/history"
)

func TestPrintHistory(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	ended := time.Date(2026, 10, 16, 8, 0, 10, 0, time.UTC)
	weekStart := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT session_id, username, vehicle`).
		WithArgs(2).
		WillReturnRows(pgxmock.NewRows([]string{"session_id", "username", "vehicle", "started_at", "ended_at", "distance_m", "duration_s", "grams", "fixes"}).
			AddRow("01JSESSION", "User1234", "2020 Toyota Corolla", ended.Add(-10*time.Second), ended, 1000.0, 10.0, 186, 11))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(grams\), 0\) FROM drive_sessions`).
		WithArgs(weekStart).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(1512))

	var out bytes.Buffer
	err = printHistory(context.Background(), &out, history.NewLog(mock, zerolog.Nop()), 2, weekStart)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "0.62 mi  186 g  2020 Toyota Corolla")
	assert.Contains(t, out.String(), "Logged since 2026-10-12: 1,512 g")
	require.NoError(t, mock.ExpectationsWereMet())
}
