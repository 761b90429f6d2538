// Package factors loads the vehicle emissions-factor dataset and answers
// exact (year, make, model) lookups.
//
// The dataset is a comma-separated file with the columns
// year,make,model,gramsPerMile. Its first record is always a header.
// Malformed records are skipped individually; only I/O failures abort a load.
package factors

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// fieldsPerRow is the exact column count of a valid dataset record.
const fieldsPerRow = 4

// VehicleProfile identifies the tracked vehicle.
type VehicleProfile struct {
	Year  string `json:"year" yaml:"year"`
	Make  string `json:"make" yaml:"make"`
	Model string `json:"model" yaml:"model"`
}

// IsZero reports whether no vehicle has been selected.
func (v VehicleProfile) IsZero() bool {
	return v.Year == "" && v.Make == "" && v.Model == ""
}

// String returns "year make model".
func (v VehicleProfile) String() string {
	return strings.TrimSpace(v.Year + " " + v.Make + " " + v.Model)
}

// Row is a single parsed dataset record.
type Row struct {
	Year         string
	Make         string
	Model        string
	GramsPerMile float64
}

// Profile returns the vehicle triple of the row.
func (r Row) Profile() VehicleProfile {
	return VehicleProfile{Year: r.Year, Make: r.Make, Model: r.Model}
}

// LoadStats describes what a load kept and dropped.
type LoadStats struct {
	Loaded  int
	Skipped int
}

// Table is an immutable emissions-factor dataset.
type Table struct {
	rows  []Row
	index map[VehicleProfile]int
}

// Load parses a dataset from r. The first record is skipped as a header.
// Records without exactly four fields, with an unparsable factor, or that
// the CSV reader rejects are dropped and counted in LoadStats.Skipped.
func Load(r io.Reader, logger zerolog.Logger) (*Table, LoadStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	t := &Table{index: make(map[VehicleProfile]int)}
	var stats LoadStats

	for line := 0; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if line == 0 {
			// Header, even when it is itself malformed.
			continue
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.Skipped++
				logger.Debug().Err(err).Int("line", parseErr.Line).Msg("skipping unparsable dataset record")
				continue
			}
			return nil, stats, fmt.Errorf("reading emissions dataset: %w", err)
		}

		row, ok := parseRow(record)
		if !ok {
			stats.Skipped++
			logger.Debug().Int("record", line).Int("fields", len(record)).Msg("skipping malformed dataset record")
			continue
		}

		t.add(row)
		stats.Loaded++
	}

	return t, stats, nil
}

// LoadFile opens path and loads it with Load.
func LoadFile(path string, logger zerolog.Logger) (*Table, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("opening emissions dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, stats, err := Load(f, logger)
	if err != nil {
		return nil, stats, err
	}
	logger.Info().
		Str("path", path).
		Int("rows", stats.Loaded).
		Int("skipped", stats.Skipped).
		Msg("emissions dataset loaded")
	return t, stats, nil
}

// NewTable builds a table from already-parsed rows. Earlier rows win on
// duplicate triples, matching Load.
func NewTable(rows []Row) *Table {
	t := &Table{index: make(map[VehicleProfile]int, len(rows))}
	for _, r := range rows {
		t.add(r)
	}
	return t
}

func (t *Table) add(r Row) {
	t.rows = append(t.rows, r)
	key := r.Profile()
	if _, exists := t.index[key]; !exists {
		t.index[key] = len(t.rows) - 1
	}
}

func parseRow(record []string) (Row, bool) {
	if len(record) != fieldsPerRow {
		return Row{}, false
	}
	factorField := strings.TrimSpace(record[3])
	gpm, err := strconv.ParseFloat(factorField, 64)
	if err != nil {
		return Row{}, false
	}
	return Row{
		Year:         strings.TrimSpace(record[0]),
		Make:         strings.TrimSpace(record[1]),
		Model:        strings.TrimSpace(record[2]),
		GramsPerMile: gpm,
	}, true
}

// Len returns the number of loaded rows.
func (t *Table) Len() int { return len(t.rows) }

// Lookup returns the factor of the first row matching v exactly.
// There is no partial or case-insensitive matching.
func (t *Table) Lookup(v VehicleProfile) (float64, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[v]
	if !ok {
		return 0, false
	}
	return t.rows[i].GramsPerMile, true
}

// AvailableYears returns the distinct years in the dataset, sorted ascending.
func (t *Table) AvailableYears() []string {
	return t.project(func(Row) bool { return true }, func(r Row) string { return r.Year })
}

// AvailableMakes returns the distinct makes for year, sorted ascending.
func (t *Table) AvailableMakes(year string) []string {
	return t.project(
		func(r Row) bool { return r.Year == year },
		func(r Row) string { return r.Make },
	)
}

// AvailableModels returns the distinct models for year and make, sorted ascending.
func (t *Table) AvailableModels(year, vehicleMake string) []string {
	return t.project(
		func(r Row) bool { return r.Year == year && r.Make == vehicleMake },
		func(r Row) string { return r.Model },
	)
}

func (t *Table) project(keep func(Row) bool, field func(Row) string) []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.rows {
		if !keep(r) {
			continue
		}
		v := field(r)
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}
