package factors

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDataset = `year,make,model,gramsPerMile
2020,Toyota,Camry,320.5
2020,Toyota,Corolla,290
2020,Honda,Civic,300
2019,Honda,Accord,350.25
2021,Ford,F-150,520
2020,Toyota,Camry,999
`

func loadString(t *testing.T, data string) (*Table, LoadStats) {
	t.Helper()
	table, stats, err := Load(strings.NewReader(data), zerolog.Nop())
	require.NoError(t, err)
	return table, stats
}

func TestLoad(t *testing.T) {
	table, stats := loadString(t, sampleDataset)
	assert.Equal(t, 6, stats.Loaded)
	assert.Zero(t, stats.Skipped)
	assert.Equal(t, 6, table.Len())
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantLoaded  int
		wantSkipped int
	}{
		{
			name:        "missing column",
			data:        "year,make,model,gpm\n2020,Toyota,300\n2020,Honda,Civic,300\n",
			wantLoaded:  1,
			wantSkipped: 1,
		},
		{
			name:        "extra column",
			data:        "year,make,model,gpm\n2020,Toyota,Camry,300,extra\n",
			wantLoaded:  0,
			wantSkipped: 1,
		},
		{
			name:        "non numeric factor",
			data:        "year,make,model,gpm\n2020,Toyota,Camry,lots\n2020,Honda,Civic,300\n",
			wantLoaded:  1,
			wantSkipped: 1,
		},
		{
			name:        "bare quote",
			data:        "year,make,model,gpm\n2020,To\"yota,Camry,300\n2020,Honda,Civic,300\n",
			wantLoaded:  1,
			wantSkipped: 1,
		},
		{
			name:        "header only",
			data:        "year,make,model,gpm\n",
			wantLoaded:  0,
			wantSkipped: 0,
		},
		{
			name:        "malformed header still skipped",
			data:        "garbage\n2020,Honda,Civic,300\n",
			wantLoaded:  1,
			wantSkipped: 0,
		},
		{
			name:        "first data row is never treated as data when header missing",
			data:        "2020,Honda,Civic,300\n2020,Toyota,Camry,320\n",
			wantLoaded:  1,
			wantSkipped: 0,
		},
		{
			name:        "windows line endings",
			data:        "year,make,model,gpm\r\n2020,Honda,Civic,300\r\n",
			wantLoaded:  1,
			wantSkipped: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stats := loadString(t, tt.data)
			assert.Equal(t, tt.wantLoaded, stats.Loaded)
			assert.Equal(t, tt.wantSkipped, stats.Skipped)
		})
	}
}

func TestLoadOmitsRowMissingColumn(t *testing.T) {
	table, _ := loadString(t, "year,make,model,gpm\n2020,Toyota,300\n")
	_, ok := table.Lookup(VehicleProfile{Year: "2020", Make: "Toyota", Model: "300"})
	assert.False(t, ok)
	assert.Empty(t, table.AvailableYears())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestLoadPropagatesIOErrors(t *testing.T) {
	_, _, err := Load(failingReader{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestLookup(t *testing.T) {
	table, _ := loadString(t, sampleDataset)

	tests := []struct {
		name    string
		profile VehicleProfile
		want    float64
		wantOK  bool
	}{
		{"exact match", VehicleProfile{"2020", "Honda", "Civic"}, 300, true},
		{"first duplicate wins", VehicleProfile{"2020", "Toyota", "Camry"}, 320.5, true},
		{"fractional factor", VehicleProfile{"2019", "Honda", "Accord"}, 350.25, true},
		{"wrong year", VehicleProfile{"2021", "Honda", "Civic"}, 0, false},
		{"case differs", VehicleProfile{"2020", "honda", "Civic"}, 0, false},
		{"partial model", VehicleProfile{"2020", "Toyota", "Cam"}, 0, false},
		{"empty", VehicleProfile{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := table.Lookup(tt.profile)
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 0)
		})
	}
}

func TestLookupIsDeterministic(t *testing.T) {
	for range 5 {
		table, _ := loadString(t, sampleDataset)
		got, ok := table.Lookup(VehicleProfile{"2020", "Toyota", "Camry"})
		require.True(t, ok)
		assert.InDelta(t, 320.5, got, 0)
	}
}

func TestNilTable(t *testing.T) {
	var table *Table
	_, ok := table.Lookup(VehicleProfile{"2020", "Honda", "Civic"})
	assert.False(t, ok)
	assert.Nil(t, table.AvailableYears())
}

func TestSelectionLists(t *testing.T) {
	table, _ := loadString(t, sampleDataset)

	assert.Equal(t, []string{"2019", "2020", "2021"}, table.AvailableYears())
	assert.Equal(t, []string{"Honda", "Toyota"}, table.AvailableMakes("2020"))
	assert.Equal(t, []string{"Camry", "Corolla"}, table.AvailableModels("2020", "Toyota"))
	assert.Empty(t, table.AvailableMakes("1999"))
	assert.Empty(t, table.AvailableModels("2020", "Ford"))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emissions.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleDataset), 0o600))

	table, stats, err := LoadFile(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Loaded)
	assert.Equal(t, 6, table.Len())

	_, _, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"), zerolog.Nop())
	require.Error(t, err)
}

func TestNewTable(t *testing.T) {
	table := NewTable([]Row{
		{Year: "2020", Make: "Kia", Model: "Rio", GramsPerMile: 250},
		{Year: "2020", Make: "Kia", Model: "Rio", GramsPerMile: 999},
	})
	got, ok := table.Lookup(VehicleProfile{"2020", "Kia", "Rio"})
	require.True(t, ok)
	assert.InDelta(t, 250, got, 0)
}

func TestVehicleProfile(t *testing.T) {
	assert.True(t, VehicleProfile{}.IsZero())
	v := VehicleProfile{Year: "2020", Make: "Honda", Model: "Civic"}
	assert.False(t, v.IsZero())
	assert.Equal(t, "2020 Honda Civic", v.String())
}
