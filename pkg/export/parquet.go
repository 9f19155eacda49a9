package export

import (
	"fmt"
	"time"

	"github.com/ilardm/strvup/pkg/atomicfile"
	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleRow struct {
	TSUTCISO string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Lat      float64 `parquet:"name=lat, type=DOUBLE"`
	Lon      float64 `parquet:"name=lon, type=DOUBLE"`
	HRBPM    int32   `parquet:"name=hr_bpm, type=INT32"`
	ValidHR  bool    `parquet:"name=valid_hr, type=BOOLEAN"`
}

// MarshalParquet renders points as a SNAPPY compressed Parquet table with one
// row per point.
func MarshalParquet(points []gpx.Point) ([]byte, error) {
	fw := buffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return nil, fmt.Errorf("error creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, p := range points {
		row := sampleRow{
			Lat: p.Lat,
			Lon: p.Lon,
		}
		if !p.Time.IsZero() {
			row.TSUTCISO = p.Time.UTC().Format(time.RFC3339Nano)
		}
		if p.HeartRate != nil {
			row.HRBPM = int32(*p.HeartRate)
			row.ValidHR = true
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, fmt.Errorf("error writing parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("error finishing parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteParquet writes the Parquet table of points to path.
func WriteParquet(path string, points []gpx.Point) error {
	data, err := MarshalParquet(points)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}
