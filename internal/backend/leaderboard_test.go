package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls   int
	entries []Entry
	err     error
}

func (s *stubSource) WeeklyEmissions(context.Context) ([]Entry, error) {
	s.calls++
	return s.entries, s.err
}

func TestLeaderboardCaches(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{entries: []Entry{{Username: "a", WeeklyEmissions: 5}, {Username: "b", WeeklyEmissions: 1}}}
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	lb := NewLeaderboard(src, 30*time.Second)
	lb.now = func() time.Time { return now }

	entries, stale, err := lb.Entries(ctx)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Len(t, entries, 2)

	now = now.Add(10 * time.Second)
	rank, err := lb.Rank(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, rank)
	assert.Equal(t, 1, src.calls, "served from cache")
	assert.Equal(t, 10*time.Second, lb.Age())

	now = now.Add(30 * time.Second)
	_, _, err = lb.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls, "expired entry is refetched")

	lb.Invalidate()
	_, _, err = lb.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
}

func TestLeaderboardServesStaleOnFailure(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{entries: []Entry{{Username: "a", WeeklyEmissions: 5}}}
	lb := NewLeaderboard(src, time.Nanosecond)

	_, _, err := lb.Entries(ctx)
	require.NoError(t, err)

	src.err = ErrSyncFailed
	time.Sleep(time.Millisecond)
	entries, stale, err := lb.Entries(ctx)
	require.NoError(t, err)
	assert.True(t, stale)
	assert.Equal(t, "a", entries[0].Username)
}

func TestLeaderboardFailureWithoutCache(t *testing.T) {
	lb := NewLeaderboard(&stubSource{err: errors.New("down")}, 0)
	_, err := lb.Rank(context.Background(), "a")
	require.Error(t, err)
	assert.Zero(t, lb.Age())
}
