package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rshade/carboncounter/internal/aggregate"
	"github.com/rshade/carboncounter/internal/factors"
)

// ErrStateCorrupted indicates the state file exists but cannot be decoded.
// Callers should abort rather than overwrite it with empty buffers.
var ErrStateCorrupted = errors.New("state file corrupted")

// PersistedState is everything that survives a restart: the user identity,
// the selected vehicle, both rolling buffers and the day they belong to.
type PersistedState struct {
	Username   string `json:"username"`
	CarYear    string `json:"carYear"`
	CarMake    string `json:"carMake"`
	CarModel   string `json:"carModel"`
	DayByDay   []int  `json:"dayByDay"`
	WeekByWeek []int  `json:"weekByWeek"`
	// LastRollover is the local date (aggregate.DateLayout) of the most
	// recent midnight applied to the buffers.
	LastRollover string `json:"lastRollover,omitempty"`
	// TodayDistanceMeters is the distance behind today's slot.
	TodayDistanceMeters float64 `json:"todayDistanceM,omitempty"`
}

// Vehicle returns the persisted vehicle selection.
func (p PersistedState) Vehicle() factors.VehicleProfile {
	return factors.VehicleProfile{Year: p.CarYear, Make: p.CarMake, Model: p.CarModel}
}

// SetVehicle stores v as the selected vehicle.
func (p *PersistedState) SetVehicle(v factors.VehicleProfile) {
	p.CarYear, p.CarMake, p.CarModel = v.Year, v.Make, v.Model
}

// Buffers decodes the stored slices. Missing slices become zero buffers.
func (p PersistedState) Buffers() (aggregate.DailyBuffer, aggregate.WeeklyBuffer, error) {
	daily, err := aggregate.DailyFromSlice(p.DayByDay)
	if err != nil {
		return aggregate.DailyBuffer{}, aggregate.WeeklyBuffer{}, fmt.Errorf("dayByDay: %w", err)
	}
	weekly, err := aggregate.WeeklyFromSlice(p.WeekByWeek)
	if err != nil {
		return aggregate.DailyBuffer{}, aggregate.WeeklyBuffer{}, fmt.Errorf("weekByWeek: %w", err)
	}
	return daily, weekly, nil
}

// SetBuffers stores copies of the buffers.
func (p *PersistedState) SetBuffers(daily aggregate.DailyBuffer, weekly aggregate.WeeklyBuffer) {
	p.DayByDay = append([]int(nil), daily[:]...)
	p.WeekByWeek = append([]int(nil), weekly[:]...)
}

// RolloverDate parses LastRollover as a midnight in loc. ok is false when
// no rollover has been recorded.
func (p PersistedState) RolloverDate(loc *time.Location) (time.Time, bool, error) {
	if p.LastRollover == "" {
		return time.Time{}, false, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(aggregate.DateLayout, p.LastRollover, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("lastRollover: %w", err)
	}
	return t, true, nil
}

// SetRolloverDate records the local date of midnight.
func (p *PersistedState) SetRolloverDate(midnight time.Time) {
	p.LastRollover = midnight.Format(aggregate.DateLayout)
}

// EnsureUsername assigns a generated username when none is set and reports
// whether it did.
func (p *PersistedState) EnsureUsername() bool {
	if p.Username != "" {
		return false
	}
	p.Username = GenerateUsername()
	return true
}

// GenerateUsername returns "User" followed by four random digits (1000-9999).
func GenerateUsername() string {
	//nolint:gosec // identifiers, not secrets
	return fmt.Sprintf("User%d", 1000+rand.IntN(9000))
}

// StateStore loads and saves PersistedState.
type StateStore interface {
	Load(ctx context.Context) (PersistedState, error)
	Save(ctx context.Context, state PersistedState) error
}

// FileStateStore persists state as a JSON file guarded by a lockfile and
// replaced atomically on save.
type FileStateStore struct {
	mu       sync.Mutex
	filePath string
}

var _ StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates a store at filePath. An empty path defaults to
// state.json in the configuration directory.
func NewFileStateStore(filePath string) (*FileStateStore, error) {
	if filePath == "" {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, err
		}
		filePath = filepath.Join(dir, "state.json")
	}
	return &FileStateStore{filePath: filePath}, nil
}

// FilePath returns the backing file path.
func (s *FileStateStore) FilePath() string {
	return s.filePath
}

// Load reads the state file. A missing file yields the zero state.
func (s *FileStateStore) Load(_ context.Context) (PersistedState, error) {
	unlock, lockErr := acquireFileLock(s.filePath + ".lock")
	if lockErr != nil {
		return PersistedState{}, fmt.Errorf("acquiring file lock: %w", lockErr)
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return PersistedState{}, nil
		}
		return PersistedState{}, fmt.Errorf("reading state file: %w", err)
	}

	var state PersistedState
	if unmarshalErr := json.Unmarshal(data, &state); unmarshalErr != nil {
		return PersistedState{}, fmt.Errorf("%w: %w", ErrStateCorrupted, unmarshalErr)
	}
	if _, _, bufErr := state.Buffers(); bufErr != nil {
		return PersistedState{}, fmt.Errorf("%w: %w", ErrStateCorrupted, bufErr)
	}
	if _, _, dateErr := state.RolloverDate(time.UTC); dateErr != nil {
		return PersistedState{}, fmt.Errorf("%w: %w", ErrStateCorrupted, dateErr)
	}
	return state, nil
}

// Save writes state via a temp file and rename.
func (s *FileStateStore) Save(_ context.Context, state PersistedState) error {
	unlock, lockErr := acquireFileLock(s.filePath + ".lock")
	if lockErr != nil {
		return fmt.Errorf("acquiring file lock: %w", lockErr)
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(s.filePath), 0o750); mkdirErr != nil {
		return fmt.Errorf("creating state directory: %w", mkdirErr)
	}

	tmpPath := s.filePath + ".tmp"
	if writeErr := os.WriteFile(tmpPath, data, 0o600); writeErr != nil {
		return fmt.Errorf("writing state temp file: %w", writeErr)
	}
	if renameErr := os.Rename(tmpPath, s.filePath); renameErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming state temp file: %w", renameErr)
	}
	return nil
}

// acquireFileLock creates lockPath exclusively, retrying and clearing stale
// locks left by dead processes. The returned func releases the lock.
func acquireFileLock(lockPath string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	const maxRetries = 10
	const retryDelay = 100 * time.Millisecond
	const staleLockAge = 30 * time.Second

	for range maxRetries {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if removeStaleLock(lockPath, staleLockAge) {
			continue
		}
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("could not acquire lock on %s after retries", lockPath)
}

func removeStaleLock(lockPath string, staleLockAge time.Duration) bool {
	info, statErr := os.Stat(lockPath)
	if statErr != nil || time.Since(info.ModTime()) <= staleLockAge {
		return false
	}
	if isLockHeldByLiveProcess(lockPath) {
		return false
	}
	_ = os.Remove(lockPath)
	return true
}

func isLockHeldByLiveProcess(lockPath string) bool {
	pidData, readErr := os.ReadFile(lockPath)
	if readErr != nil || len(pidData) == 0 {
		return false
	}
	var pid int
	if _, scanErr := fmt.Sscanf(string(pidData), "%d", &pid); scanErr != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence only.
	return proc.Signal(syscall.Signal(0)) == nil
}
