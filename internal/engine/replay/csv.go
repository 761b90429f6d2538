package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rshade/carboncounter/internal/tracking"
)

const fixFields = 5

// ReadCSV parses fixes from rows of timestamp_ms,lat,lon,speed,accuracy.
// A leading header row is skipped. Unlike the factor dataset, a malformed
// fix row is an error, since silently dropping it would change distances.
func ReadCSV(r io.Reader) ([]tracking.Fix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = fixFields
	reader.TrimLeadingSpace = true

	var fixes []tracking.Fix
	for line := 1; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return fixes, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading fixes: %w", err)
		}
		if line == 1 && isHeader(record) {
			continue
		}

		fix, err := parseFix(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fixes = append(fixes, fix)
	}
}

func isHeader(record []string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	return err != nil
}

func parseFix(record []string) (tracking.Fix, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
	if err != nil {
		return tracking.Fix{}, fmt.Errorf("timestamp_ms: %w", err)
	}

	var vals [4]float64
	names := [4]string{"lat", "lon", "speed", "accuracy"}
	for i := range vals {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return tracking.Fix{}, fmt.Errorf("%s: %w", names[i], err)
		}
	}

	return tracking.Fix{
		Timestamp:          time.UnixMilli(ms).UTC(),
		Latitude:           vals[0],
		Longitude:          vals[1],
		Speed:              vals[2],
		HorizontalAccuracy: vals[3],
	}, nil
}
