// Package kvstore persists carboncounter state in a Redis hash.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rshade/carboncounter/internal/config"
)

const (
	fieldUsername   = "username"
	fieldCarYear    = "carYear"
	fieldCarMake    = "carMake"
	fieldCarModel   = "carModel"
	fieldDayByDay   = "dayByDay"
	fieldWeekByWeek = "weekByWeek"
	fieldRollover   = "lastRollover"
	fieldTodayDist  = "todayDistanceM"
)

// Connect returns a client for cfg.State, or nil when no address is set.
func Connect(cfg config.StateConfig) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

// RedisStateStore keeps PersistedState in a single hash at "<prefix>:state".
// Buffers are stored as JSON arrays.
type RedisStateStore struct {
	client redis.UniversalClient
	key    string
	logger zerolog.Logger
}

var _ config.StateStore = (*RedisStateStore)(nil)

// NewRedisStateStore creates a store under the given key prefix.
func NewRedisStateStore(client redis.UniversalClient, prefix string, logger zerolog.Logger) *RedisStateStore {
	if prefix == "" {
		prefix = "carboncounter"
	}
	return &RedisStateStore{
		client: client,
		key:    prefix + ":state",
		logger: logger.With().Str("component", "kvstore").Logger(),
	}
}

// Key returns the hash key.
func (s *RedisStateStore) Key() string { return s.key }

// Load reads the hash. A missing key yields the zero state.
func (s *RedisStateStore) Load(ctx context.Context) (config.PersistedState, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return config.PersistedState{}, fmt.Errorf("reading %s: %w", s.key, err)
	}

	state := config.PersistedState{
		Username:     fields[fieldUsername],
		CarYear:      fields[fieldCarYear],
		CarMake:      fields[fieldCarMake],
		CarModel:     fields[fieldCarModel],
		LastRollover: fields[fieldRollover],
	}
	if state.DayByDay, err = decodeInts(fields[fieldDayByDay]); err != nil {
		return config.PersistedState{}, fmt.Errorf("%w: %s: %w", config.ErrStateCorrupted, fieldDayByDay, err)
	}
	if state.WeekByWeek, err = decodeInts(fields[fieldWeekByWeek]); err != nil {
		return config.PersistedState{}, fmt.Errorf("%w: %s: %w", config.ErrStateCorrupted, fieldWeekByWeek, err)
	}
	if raw := fields[fieldTodayDist]; raw != "" {
		if state.TodayDistanceMeters, err = strconv.ParseFloat(raw, 64); err != nil {
			return config.PersistedState{}, fmt.Errorf("%w: %s: %w", config.ErrStateCorrupted, fieldTodayDist, err)
		}
	}
	if _, _, bufErr := state.Buffers(); bufErr != nil {
		return config.PersistedState{}, fmt.Errorf("%w: %w", config.ErrStateCorrupted, bufErr)
	}
	if _, _, dateErr := state.RolloverDate(time.UTC); dateErr != nil {
		return config.PersistedState{}, fmt.Errorf("%w: %w", config.ErrStateCorrupted, dateErr)
	}

	s.logger.Debug().Str("key", s.key).Int("fields", len(fields)).Msg("state loaded")
	return state, nil
}

// Save writes every field in one HSET.
func (s *RedisStateStore) Save(ctx context.Context, state config.PersistedState) error {
	day, err := json.Marshal(nonNil(state.DayByDay))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", fieldDayByDay, err)
	}
	week, err := json.Marshal(nonNil(state.WeekByWeek))
	if err != nil {
		return fmt.Errorf("encoding %s: %w", fieldWeekByWeek, err)
	}

	if err := s.client.HSet(ctx, s.key,
		fieldUsername, state.Username,
		fieldCarYear, state.CarYear,
		fieldCarMake, state.CarMake,
		fieldCarModel, state.CarModel,
		fieldDayByDay, string(day),
		fieldWeekByWeek, string(week),
		fieldRollover, state.LastRollover,
		fieldTodayDist, strconv.FormatFloat(state.TodayDistanceMeters, 'g', -1, 64),
	).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", s.key, err)
	}
	return nil
}

func decodeInts(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
