package hrm

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHRM = `[Params]
Version=106
Monitor=22
Date=20180310
StartTime=17:09:50.0
Interval=1

[Note]
morning ride

[HRData]
91	0	0
93	12	210
95
97
`

func TestParseSections(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleHRM))
	require.NoError(t, err)

	assert.True(t, doc.Params.HasDate)
	assert.True(t, doc.Params.HasStartTime)
	assert.Equal(t, 1, doc.Params.Interval)
	assert.Equal(t, []int{91, 93, 95, 97}, doc.Samples)
	assert.Equal(t, []string{"morning ride"}, doc.Sections["Note"])
	assert.NotContains(t, doc.Sections, SectionParams)
	assert.NotContains(t, doc.Sections, SectionHRData)

	origin, err := doc.Origin()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 10, 17, 9, 50, 0, time.UTC), origin)
}

func TestParseSampleCountMatchesNonBlankLines(t *testing.T) {
	var b strings.Builder
	b.WriteString("[Params]\nDate=20200101\nStartTime=00:00:00.0\n\n[HRData]\n")
	for i := 0; i < 300; i++ {
		b.WriteString("120\r\n")
	}
	b.WriteString("\n\n")

	doc, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, doc.Samples, 300)
}

func TestParseFractionalStartTime(t *testing.T) {
	doc, err := Parse(strings.NewReader("[Params]\nDate=20180310\nStartTime=17:09:50.250000\n"))
	require.NoError(t, err)

	origin, err := doc.Origin()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2018, 3, 10, 17, 9, 50, 250000000, time.UTC), origin)
}

func TestParseIgnoresLinesOutsideSections(t *testing.T) {
	doc, err := Parse(strings.NewReader("stray line\n[HRData]\n80\n\nanother stray\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{80}, doc.Samples)
	assert.Empty(t, doc.Sections)
}

func TestParseFormatErrors(t *testing.T) {
	tests := map[string]string{
		"params without separator":   "[Params]\nDate\n",
		"params with two separators": "[Params]\nDate=2018=03\n",
		"bad date":                   "[Params]\nDate=2018-03-10\n",
		"bad start time":             "[Params]\nStartTime=5pm\n",
		"bad interval":               "[Params]\nInterval=one\n",
		"bad heart rate":             "[HRData]\n91\nabc\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestOriginRequiresDateAndStartTime(t *testing.T) {
	doc, err := Parse(strings.NewReader("[Params]\nDate=20180310\n"))
	require.NoError(t, err)

	_, err = doc.Origin()
	assert.ErrorIs(t, err, ErrFormat)
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.hrm"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFillGapsInterpolates(t *testing.T) {
	start := time.Date(2018, 3, 10, 17, 9, 50, 0, time.UTC)
	samples := map[time.Time]float64{
		start.Add(4 * time.Second): 100,
		start:                      80,
		start.Add(5 * time.Second): 101,
	}

	filled := FillGaps(samples)
	require.Len(t, filled, 6)

	want := []float64{80, 85, 90, 95, 100, 101}
	for i, s := range filled {
		assert.Equal(t, start.Add(time.Duration(i)*time.Second), s.Time)
		assert.InDelta(t, want[i], s.Value, 1e-9)
	}
}

func TestFillGapsEmpty(t *testing.T) {
	assert.Empty(t, FillGaps(nil))
}

func TestWriteRoundTrip(t *testing.T) {
	start := time.Date(2018, 3, 10, 17, 9, 50, 0, time.UTC)
	samples := FillGaps(map[time.Time]float64{
		start:                      80,
		start.Add(3 * time.Second): 90,
	})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, samples))
	assert.True(t, strings.HasPrefix(buf.String(), "[Params]\nDate=20180310\nStartTime=17:09:50.0\nInterval=1\n\n[HRData]\n"))

	doc, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, []int{80, 83, 86, 90}, doc.Samples)

	origin, err := doc.Origin()
	require.NoError(t, err)
	assert.Equal(t, start, origin)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.hrm")
	start := time.Date(2018, 3, 10, 17, 9, 50, 0, time.UTC)

	require.NoError(t, WriteFile(path, []TimedSample{{Time: start, Value: 77.9}}))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, []int{77}, doc.Samples)

	assert.Error(t, WriteFile(path, nil))
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
