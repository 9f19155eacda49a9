// Package miband reads heart-rate exports of the Mi Band Tools application.
package miband

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// TimeLayout is the layout of the dateTime column, e.g. 10.03.2018 17:09:50.
const TimeLayout = "02.01.2006 15:04:05"

// ReadCSV reads a CSV export with a header naming at least the dateTime and
// rate columns. Timestamps are interpreted in loc and returned in UTC.
func ReadCSV(r io.Reader, loc *time.Location) (map[time.Time]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading csv header: %w", err)
	}
	timeCol, rateCol := -1, -1
	for i, name := range header {
		switch name {
		case "dateTime":
			timeCol = i
		case "rate":
			rateCol = i
		}
	}
	if timeCol < 0 || rateCol < 0 {
		return nil, fmt.Errorf("csv header %v lacks dateTime and rate columns", header)
	}

	samples := make(map[time.Time]float64)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading csv: %w", err)
		}
		if len(row) <= timeCol || len(row) <= rateCol {
			return nil, fmt.Errorf("csv line %d: too few columns", line)
		}
		rate, err := strconv.Atoi(row[rateCol])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: rate %q: %w", line, row[rateCol], err)
		}
		stamp, err := time.ParseInLocation(TimeLayout, row[timeCol], loc)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: dateTime %q: %w", line, row[timeCol], err)
		}
		samples[stamp.UTC()] = float64(rate)
	}
	return samples, nil
}
