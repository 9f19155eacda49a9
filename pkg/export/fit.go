// Package export renders merged tracks in formats other than GPX.
package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ilardm/strvup/pkg/atomicfile"
	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/tormoder/fit"
)

// EncodeFIT writes points as a FIT activity: one record per point framed by
// timer start and stop events.
func EncodeFIT(w io.Writer, points []gpx.Point) error {
	if len(points) == 0 {
		return errors.New("no track points to encode")
	}
	for i, p := range points {
		if p.Time.IsZero() {
			return fmt.Errorf("track point %d has no time", i)
		}
	}

	header := fit.NewHeader(fit.V20, true)
	file, err := fit.NewFile(fit.FileTypeActivity, header)
	if err != nil {
		return fmt.Errorf("error creating fit file: %w", err)
	}
	file.FileId.TimeCreated = points[0].Time

	activity, err := file.Activity()
	if err != nil {
		return fmt.Errorf("error accessing fit activity: %w", err)
	}

	start := fit.NewEventMsg()
	start.Timestamp = points[0].Time
	start.Event = fit.EventTimer
	start.EventType = fit.EventTypeStart
	activity.Events = append(activity.Events, start)

	for _, p := range points {
		record := fit.NewRecordMsg()
		record.Timestamp = p.Time
		record.PositionLat = fit.NewLatitudeDegrees(p.Lat)
		record.PositionLong = fit.NewLongitudeDegrees(p.Lon)
		if p.HeartRate != nil && *p.HeartRate >= 0 && *p.HeartRate < 0xFF {
			record.HeartRate = uint8(*p.HeartRate)
		}
		activity.Records = append(activity.Records, record)
	}

	stop := fit.NewEventMsg()
	stop.Timestamp = points[len(points)-1].Time
	stop.Event = fit.EventTimer
	stop.EventType = fit.EventTypeStopAll
	activity.Events = append(activity.Events, stop)

	return fit.Encode(w, file, binary.LittleEndian)
}

// WriteFIT encodes points into a FIT file at path.
func WriteFIT(path string, points []gpx.Point) error {
	var buf bytes.Buffer
	if err := EncodeFIT(&buf, points); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, buf.Bytes(), 0o644)
}
