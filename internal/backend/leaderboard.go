package backend

import (
	"context"
	"sync"
	"time"
)

// DefaultLeaderboardTTL is how long a fetched leaderboard is served.
const DefaultLeaderboardTTL = time.Minute

// LeaderboardSource fetches the weekly leaderboard.
type LeaderboardSource interface {
	WeeklyEmissions(ctx context.Context) ([]Entry, error)
}

// cachedBoard is one fetched leaderboard with its expiry.
type cachedBoard struct {
	entries   []Entry
	fetchedAt time.Time
	expiresAt time.Time
}

func (c *cachedBoard) valid(now time.Time) bool {
	return c != nil && now.Before(c.expiresAt)
}

// Leaderboard caches WeeklyEmissions for a TTL. A failed refresh serves the
// previous entries when there are any, so a flaky backend does not blank
// the board.
type Leaderboard struct {
	source LeaderboardSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current *cachedBoard
}

// NewLeaderboard wraps source. A non-positive ttl uses DefaultLeaderboardTTL.
func NewLeaderboard(source LeaderboardSource, ttl time.Duration) *Leaderboard {
	if ttl <= 0 {
		ttl = DefaultLeaderboardTTL
	}
	return &Leaderboard{source: source, ttl: ttl, now: time.Now}
}

// Entries returns the cached leaderboard, refreshing it when expired.
// stale is true when a refresh failed and older entries were returned.
func (l *Leaderboard) Entries(ctx context.Context) (entries []Entry, stale bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.current.valid(now) {
		return l.current.entries, false, nil
	}

	fresh, err := l.source.WeeklyEmissions(ctx)
	if err != nil {
		if l.current != nil {
			return l.current.entries, true, nil
		}
		return nil, false, err
	}

	l.current = &cachedBoard{entries: fresh, fetchedAt: now, expiresAt: now.Add(l.ttl)}
	return fresh, false, nil
}

// Rank returns username's position on the cached leaderboard.
func (l *Leaderboard) Rank(ctx context.Context, username string) (int, error) {
	entries, _, err := l.Entries(ctx)
	if err != nil {
		return 0, err
	}
	return Rank(entries, username), nil
}

// Invalidate forces the next call to refetch.
func (l *Leaderboard) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil {
		l.current.expiresAt = time.Time{}
	}
}

// Age returns how old the cached entries are, or 0 when nothing is cached.
func (l *Leaderboard) Age() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return 0
	}
	return l.now().Sub(l.current.fetchedAt)
}
