package gpx

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/ilardm/strvup/pkg/hrm"
	"github.com/relvacode/iso8601"
)

// TimeLayout is the layout rewritten track point timestamps are formatted with.
const TimeLayout = "2006-01-02T15:04:05.999999-07:00"

// MergeStats summarizes one merge.
type MergeStats struct {
	Points     int
	FirstDelta int
	LastDelta  int
}

// Merge injects the heart-rate samples of rec into every track point of the
// 1.1 document doc and relabels the point timestamps with tz. The document is
// modified in place and returned.
//
// The sample index of a point is the number of whole seconds between the
// recording start and the point time, which assumes a one second sample
// interval. Merging twice appends a second TrackPointExtension per point.
func Merge(doc *etree.Document, rec *hrm.Document, tz *time.Location) (*etree.Document, error) {
	_, err := MergeWithStats(doc, rec, tz)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// MergeWithStats is Merge returning a summary instead of the document.
func MergeWithStats(doc *etree.Document, rec *hrm.Document, tz *time.Location) (MergeStats, error) {
	var stats MergeStats

	root := doc.Root()
	if root == nil {
		return stats, fmt.Errorf("%w: document has no root element", ErrStructure)
	}
	origin, err := rec.Origin()
	if err != nil {
		return stats, err
	}
	if tz == nil {
		tz = time.UTC
	}
	if rec.Params.HasInterval && rec.Params.Interval != 1 {
		slog.Warn("hrm interval is not one second, samples will be misaligned", "interval", rec.Params.Interval)
	}

	tpx := bindNamespace(root, NamespaceGPXTPX, "gpxtpx")

	for i, pt := range descendants(root, NamespaceGPX11, "trkpt") {
		timeEl := child(pt, NamespaceGPX11, "time")
		if timeEl == nil {
			return stats, fmt.Errorf("%w: track point %d has no time", ErrStructure, i)
		}
		ptTime, err := ParseTime(timeEl.Text())
		if err != nil {
			return stats, fmt.Errorf("track point %d: %w", i, err)
		}
		timeEl.SetText(ptTime.In(tz).Format(TimeLayout))

		elapsed := ptTime.Sub(origin).Seconds()
		delta := int(math.Floor(elapsed))
		if elapsed < 0 || delta >= len(rec.Samples) {
			return stats, fmt.Errorf("%w: point %d at %s is %ds from recording start %s, recording has %d samples",
				ErrAlignment, i, ptTime.Format(time.RFC3339), delta, origin.Format(time.RFC3339), len(rec.Samples))
		}

		exts := child(pt, NamespaceGPX11, "extensions")
		if exts == nil {
			exts = pt.CreateElement(qualify(pt.Space, "extensions"))
		}
		ext := exts.CreateElement(qualify(tpx, "TrackPointExtension"))
		hr := ext.CreateElement(qualify(tpx, "hr"))
		hr.SetText(strconv.Itoa(rec.Samples[delta]))

		if stats.Points == 0 {
			stats.FirstDelta = delta
		}
		stats.LastDelta = delta
		stats.Points++
	}
	slog.Debug("merged heart rate", "points", stats.Points, "first_delta", stats.FirstDelta, "last_delta", stats.LastDelta)
	return stats, nil
}

// ParseTime parses an ISO-8601 timestamp. A space may separate date and
// time, offsets may be hour-only. Values without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	t, err := iso8601.ParseString(s)
	if err == nil {
		return t, nil
	}
	for _, layout := range fallbackLayouts {
		if t, lerr := time.ParseInLocation(layout, s, time.UTC); lerr == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrFormat, s, err)
}

// fallbackLayouts cover what the ISO-8601 parser rejects. Zone-less layouts
// are read as UTC.
var fallbackLayouts = []string{
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
}

// ParseOffset parses a fixed UTC offset written as +HHMM, -HHMM, +HH:MM or Z.
func ParseOffset(s string) (*time.Location, error) {
	s = strings.TrimSpace(s)
	if s == "Z" {
		return time.UTC, nil
	}
	clean := strings.Replace(s, ":", "", 1)
	if len(clean) != 5 || (clean[0] != '+' && clean[0] != '-') {
		return nil, fmt.Errorf("%w: timezone offset %q, expected [+-]HHMM", ErrFormat, s)
	}
	hours, herr := strconv.Atoi(clean[1:3])
	minutes, merr := strconv.Atoi(clean[3:5])
	if herr != nil || merr != nil || hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return nil, fmt.Errorf("%w: timezone offset %q, expected [+-]HHMM", ErrFormat, s)
	}

	offset := hours*3600 + minutes*60
	if clean[0] == '-' {
		offset = -offset
	}
	return time.FixedZone(clean, offset), nil
}
