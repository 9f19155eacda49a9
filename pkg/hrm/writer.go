package hrm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/ilardm/strvup/pkg/atomicfile"
)

// TimedSample is one heart-rate value at a given instant. Values may be
// fractional after gap filling, they are truncated when written.
type TimedSample struct {
	Time  time.Time
	Value float64
}

// FillGaps orders samples by time and densifies them to one sample per whole
// second between the earliest and the latest timestamp. Missing values are
// interpolated linearly between the two surrounding known samples.
func FillGaps(samples map[time.Time]float64) []TimedSample {
	stamps := make([]time.Time, 0, len(samples))
	for stamp := range samples {
		stamps = append(stamps, stamp)
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	out := make([]TimedSample, 0, len(stamps))
	for i, stamp := range stamps {
		sample := samples[stamp]
		out = append(out, TimedSample{Time: stamp, Value: sample})

		if i == len(stamps)-1 {
			continue
		}

		next := stamps[i+1]
		gap := int(next.Sub(stamp) / time.Second)
		if gap <= 1 {
			continue
		}

		step := (samples[next] - sample) / float64(gap)
		for j := 1; j < gap; j++ {
			out = append(out, TimedSample{
				Time:  stamp.Add(time.Duration(j) * time.Second),
				Value: sample + step*float64(j),
			})
		}
	}
	return out
}

// Write writes samples as a minimal HRM document with a one second interval.
// The first sample defines the recording start.
func Write(w io.Writer, samples []TimedSample) error {
	if len(samples) == 0 {
		return errors.New("no samples to write")
	}
	start := samples[0].Time

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "[%s]\n", SectionParams)
	fmt.Fprintf(bw, "Date=%s\n", start.Format(dateLayout))
	fmt.Fprintf(bw, "StartTime=%s.0\n", start.Format(startTimeLayout))
	fmt.Fprintf(bw, "Interval=1\n\n")
	fmt.Fprintf(bw, "[%s]\n", SectionHRData)
	for _, s := range samples {
		fmt.Fprintf(bw, "%d\n", int(s.Value))
	}
	return bw.Flush()
}

// WriteFile writes samples to path. The file is only replaced once the whole
// document has been written.
func WriteFile(path string, samples []TimedSample) error {
	return atomicfile.Write(path, 0o644, func(w io.Writer) error {
		if err := Write(w, samples); err != nil {
			return fmt.Errorf("error writing hrm: %w", err)
		}
		return nil
	})
}
