// Package hrm reads and writes Polar-style heart-rate monitor (.hrm) files.
//
// An HRM file is made of named sections:
//
//	[Params]
//	Date=20180310
//	StartTime=17:09:50.0
//	Interval=1
//
//	[HRData]
//	92
//	93
//
// A blank line terminates a section. Only the Params and HRData sections are
// interpreted, other sections are kept as raw lines.
package hrm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrFormat is returned when a line of a recognized section is malformed.
var ErrFormat = errors.New("malformed hrm data")

const (
	SectionParams = "Params"
	SectionHRData = "HRData"

	dateLayout      = "20060102"
	startTimeLayout = "15:04:05"
)

// Params holds the recognized keys of the Params section.
type Params struct {
	// Date is the recording day at midnight UTC.
	Date time.Time
	// StartTime is the offset of the first sample from midnight.
	StartTime time.Duration
	// Interval is the number of seconds between two samples.
	Interval int

	HasDate      bool
	HasStartTime bool
	HasInterval  bool
}

// Document is a parsed HRM file.
type Document struct {
	Params  Params
	Samples []int
	// Sections holds the raw lines of every section without a dedicated parser.
	Sections map[string][]string
}

// Origin returns the instant of the first sample, assumed to be UTC.
func (d *Document) Origin() (time.Time, error) {
	if !d.Params.HasDate || !d.Params.HasStartTime {
		return time.Time{}, fmt.Errorf("%w: Date and StartTime params are required", ErrFormat)
	}
	return d.Params.Date.Add(d.Params.StartTime), nil
}

// ParseFile opens and parses the HRM file at path.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening hrm file: %w", err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", path, err)
	}
	return doc, nil
}

// Parse reads an HRM document from r.
func Parse(r io.Reader) (*Document, error) {
	sections := make(map[string][]string)
	current := ""

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")
			slog.Debug("started section", "section", current)
			sections[current] = []string{}
			continue
		}

		if strings.TrimSpace(line) == "" {
			if current != "" {
				slog.Debug("ended section", "section", current)
			}
			current = ""
			continue
		}

		if current == "" {
			continue
		}
		sections[current] = append(sections[current], line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("error reading hrm data: %w", err)
	}

	doc := &Document{
		Sections: make(map[string][]string),
	}
	for name, lines := range sections {
		switch name {
		case SectionParams:
			params, err := parseParams(lines)
			if err != nil {
				return nil, err
			}
			doc.Params = params
		case SectionHRData:
			samples, err := parseHRData(lines)
			if err != nil {
				return nil, err
			}
			doc.Samples = samples
		default:
			doc.Sections[name] = lines
		}
	}
	slog.Debug("parsed hrm", "samples", len(doc.Samples), "sections", len(sections))
	return doc, nil
}

func parseParams(lines []string) (Params, error) {
	var p Params
	for _, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.Contains(value, "=") {
			return p, fmt.Errorf("%w: params line %q is not Key=Value", ErrFormat, line)
		}

		switch key {
		case "Date":
			date, err := time.ParseInLocation(dateLayout, value, time.UTC)
			if err != nil {
				return p, fmt.Errorf("%w: Date %q: %v", ErrFormat, value, err)
			}
			p.Date, p.HasDate = date, true
		case "StartTime":
			start, err := parseStartTime(value)
			if err != nil {
				return p, fmt.Errorf("%w: StartTime %q: %v", ErrFormat, value, err)
			}
			p.StartTime, p.HasStartTime = start, true
		case "Interval":
			interval, err := strconv.Atoi(value)
			if err != nil {
				return p, fmt.Errorf("%w: Interval %q: %v", ErrFormat, value, err)
			}
			p.Interval, p.HasInterval = interval, true
		}
	}
	return p, nil
}

// parseStartTime accepts HH:MM:SS with an optional fractional part.
func parseStartTime(value string) (time.Duration, error) {
	t, err := time.Parse(startTimeLayout, value)
	if err != nil {
		return 0, err
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return t.Sub(midnight), nil
}

func parseHRData(lines []string) ([]int, error) {
	samples := make([]int, 0, len(lines))
	for _, line := range lines {
		// only the heart rate column is supported
		field, _, _ := strings.Cut(line, "\t")
		hr, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("%w: HRData line %q: %v", ErrFormat, line, err)
		}
		samples = append(samples, hr)
	}
	return samples, nil
}
