package gpx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

// Point is a read-only view of one track point.
type Point struct {
	Lat  float64
	Lon  float64
	Time time.Time
	// HeartRate is nil when the point carries no heart-rate extension.
	HeartRate *int
}

// Points lists the track points of a 1.1 document in document order. When a
// point carries several heart-rate extensions the first one wins.
func Points(doc *etree.Document) ([]Point, error) {
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: document has no root element", ErrStructure)
	}

	var out []Point
	for i, pt := range descendants(root, NamespaceGPX11, "trkpt") {
		var p Point
		var err error
		if p.Lat, err = strconv.ParseFloat(pt.SelectAttrValue("lat", ""), 64); err != nil {
			return nil, fmt.Errorf("%w: track point %d latitude: %v", ErrFormat, i, err)
		}
		if p.Lon, err = strconv.ParseFloat(pt.SelectAttrValue("lon", ""), 64); err != nil {
			return nil, fmt.Errorf("%w: track point %d longitude: %v", ErrFormat, i, err)
		}
		if t := child(pt, NamespaceGPX11, "time"); t != nil {
			if p.Time, err = ParseTime(t.Text()); err != nil {
				return nil, fmt.Errorf("track point %d: %w", i, err)
			}
		}
		if exts := child(pt, NamespaceGPX11, "extensions"); exts != nil {
			if hrs := descendants(exts, NamespaceGPXTPX, "hr"); len(hrs) > 0 {
				hr, err := strconv.Atoi(hrs[0].Text())
				if err != nil {
					return nil, fmt.Errorf("%w: track point %d heart rate: %v", ErrFormat, i, err)
				}
				p.HeartRate = &hr
			}
		}
		out = append(out, p)
	}
	return out, nil
}
