package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/ilardm/strvup/pkg/http/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.0" xmlns="http://www.topografix.com/GPX/1/0">
  <trk><trkseg>
    <trkpt lat="55.750" lon="37.610"><time>2018-03-10T17:09:50Z</time></trkpt>
    <trkpt lat="55.751" lon="37.611"><time>2018-03-10T17:09:51Z</time></trkpt>
  </trkseg></trk>
</gpx>
`

const testHRM = "[Params]\nDate=20180310\nStartTime=17:09:50.0\nInterval=1\n\n[HRData]\n90\n91\n"

func writeInputs(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var files []string
	for _, name := range names {
		path := filepath.Join(dir, name+".gpx")
		require.NoError(t, os.WriteFile(path, []byte(testGPX), 0o644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".hrm"), []byte(testHRM), 0o644))
		files = append(files, path)
	}
	return files
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmdMergesWithoutUpload(t *testing.T) {
	files := writeInputs(t, "a", "b")
	metrics := filepath.Join(t.TempDir(), "strvup.prom")

	_, err := execute(t, "--no-upload", "--save-merged", "--merge", "--tz", "+0100", "--metrics-file", metrics, files[0], files[1])
	require.NoError(t, err)

	dir := filepath.Dir(files[0])
	assert.FileExists(t, filepath.Join(dir, "a_hrm.gpx"))
	assert.FileExists(t, filepath.Join(dir, "a_b.gpx"))
	data, err := os.ReadFile(filepath.Join(dir, "a_b.gpx"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "2018-03-10T18:09:51+01:00")

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `strvup_files_total{outcome="merged"}`)
	assert.Contains(t, string(prom), "strvup_merged_points_total")
}

func TestRootCmdRejectsInvalidFlags(t *testing.T) {
	files := writeInputs(t, "a")
	tests := map[string][]string{
		"tz":     {"--no-upload", "--tz", "CET", files[0]},
		"type":   {"--no-upload", "--type", "skydive", files[0]},
		"format": {"--no-upload", "--format", "tcx", files[0]},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := execute(t, args...)
			assert.ErrorContains(t, err, "invalid --"+name)
		})
	}
}

func TestRootCmdRequiresFiles(t *testing.T) {
	_, err := execute(t, "--no-upload")
	assert.Error(t, err)
}

func TestRootCmdFailsOnMissingHRM(t *testing.T) {
	files := writeInputs(t, "a")
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(files[0]), "a.hrm")))

	out, err := execute(t, "--no-upload", files[0])
	require.Error(t, err)
	assert.Contains(t, out, "level=ERROR")
	assert.NotContains(t, out, "time=")
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, logLevel(0))
	assert.Equal(t, slog.LevelInfo, logLevel(1))
	assert.Equal(t, slog.LevelDebug, logLevel(2))
	assert.Equal(t, slog.LevelDebug, logLevel(3))
}

func TestInstrumentTransportRecordsRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "600,30000")
		w.Header().Set("X-RateLimit-Usage", "12,300")
	}))
	defer ts.Close()

	client := &http.Client{Transport: instrumentTransport(rate.StravaHeaderKeys)(http.DefaultTransport)}
	res, err := client.Get(ts.URL)
	require.NoError(t, err)
	res.Body.Close()

	metrics := filepath.Join(t.TempDir(), "strvup.prom")
	require.NoError(t, writeMetrics(metrics))
	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "strvup_rate_limiter_limit 600")
	assert.Contains(t, string(prom), "strvup_rate_limiter_remaining 588")
}
