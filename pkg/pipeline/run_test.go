package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/ilardm/strvup/pkg/strava"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gpx10Ride = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.0" creator="tracker" xmlns="http://www.topografix.com/GPX/1/0">
  <trk>
    <name>ride</name>
    <trkseg>
      <trkpt lat="55.750" lon="37.610"><time>2018-03-10T17:09:50Z</time><sat>7</sat></trkpt>
      <trkpt lat="55.751" lon="37.611"><time>2018-03-10T17:09:52Z</time><sat>8</sat></trkpt>
    </trkseg>
  </trk>
</gpx>
`

const gpx11Walk = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="phone" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <trkseg>
      <trkpt lat="55.760" lon="37.620"><time>2018-03-10T18:00:00Z</time></trkpt>
      <trkpt lat="55.761" lon="37.621"><time>2018-03-10T18:00:01Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>
`

const rideHRM = "[Params]\nDate=20180310\nStartTime=17:09:50.0\nInterval=1\n\n[HRData]\n90\n91\n93\n"
const walkHRM = "[Params]\nDate=20180310\nStartTime=18:00:00.0\nInterval=1\n\n[HRData]\n70\n71\n"

type fixture struct {
	dir   string
	files []string
}

func newFixture(t *testing.T, tracks map[string][2]string, order ...string) fixture {
	t.Helper()
	f := fixture{dir: t.TempDir()}
	for _, name := range order {
		track := tracks[name]
		gpxPath := filepath.Join(f.dir, name+".gpx")
		require.NoError(t, os.WriteFile(gpxPath, []byte(track[0]), 0o644))
		if track[1] != "" {
			require.NoError(t, os.WriteFile(filepath.Join(f.dir, name+".hrm"), []byte(track[1]), 0o644))
		}
		f.files = append(f.files, gpxPath)
	}
	return f
}

func rideAndWalk(t *testing.T) fixture {
	return newFixture(t, map[string][2]string{
		"ride": {gpx10Ride, rideHRM},
		"walk": {gpx11Walk, walkHRM},
	}, "ride", "walk")
}

type fakeUploader struct {
	mutex    sync.Mutex
	paths    []string
	contents []string
	opts     []strava.UploadOptions
	err      error
}

func (f *fakeUploader) Upload(_ context.Context, path string, opts strava.UploadOptions) (*strava.UploadStatus, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.paths = append(f.paths, path)
	f.contents = append(f.contents, string(data))
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return &strava.UploadStatus{ID: 1, Error: f.err.Error()}, f.err
	}
	return &strava.UploadStatus{ID: int64(len(f.paths)), Status: "Your activity is ready.", ActivityID: 100 + int64(len(f.paths))}, nil
}

type fakeArchiver struct {
	paths []string
}

func (f *fakeArchiver) Archive(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return "strvup/" + filepath.Base(path), nil
}

func heartRatesOf(t *testing.T, path string) []int {
	t.Helper()
	doc, err := gpx.ReadFile(path)
	require.NoError(t, err)
	points, err := gpx.Points(doc)
	require.NoError(t, err)
	var hrs []int
	for _, p := range points {
		require.NotNil(t, p.HeartRate)
		hrs = append(hrs, *p.HeartRate)
	}
	return hrs
}

func TestRunSaveMerged(t *testing.T) {
	fx := rideAndWalk(t)

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, Workers: 2})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	assert.Equal(t, filepath.Join(fx.dir, "ride_hrm.gpx"), res.Files[0].Output)
	assert.Equal(t, filepath.Join(fx.dir, "walk_hrm.gpx"), res.Files[1].Output)
	assert.Equal(t, []int{90, 93}, heartRatesOf(t, res.Files[0].Output))
	assert.Equal(t, []int{70, 71}, heartRatesOf(t, res.Files[1].Output))
	assert.Equal(t, 2, res.Files[0].Stats.Points)
	assert.Equal(t, 2, res.Files[0].Stats.LastDelta)

	doc, err := gpx.ReadFile(res.Files[0].Output)
	require.NoError(t, err)
	assert.Equal(t, "1.1", gpx.Version(doc))
	assert.Equal(t, "strvup", doc.Root().SelectAttrValue("creator", ""))
	assert.Len(t, res.Uploads, 2)
}

func TestRunRelabelsTimezone(t *testing.T) {
	fx := rideAndWalk(t)
	tz, err := gpx.ParseOffset("+0300")
	require.NoError(t, err)

	res, err := Run(context.Background(), Options{Files: fx.files[:1], SaveMerged: true, TZ: tz})
	require.NoError(t, err)
	data, err := os.ReadFile(res.Files[0].Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2018-03-10T20:09:50+03:00")
}

func TestRunSkipsFailingFiles(t *testing.T) {
	fx := newFixture(t, map[string][2]string{
		"ride":  {gpx10Ride, rideHRM},
		"nohrm": {gpx11Walk, ""},
		"short": {gpx10Ride, "[Params]\nDate=20180310\nStartTime=17:09:50.0\nInterval=1\n\n[HRData]\n90\n"},
	}, "nohrm", "ride", "short")
	up := &fakeUploader{}

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, Uploader: up})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, err, gpx.ErrAlignment)
	assert.Contains(t, err.Error(), fx.files[0])
	assert.Equal(t, 2, res.Failed())

	assert.NoFileExists(t, filepath.Join(fx.dir, "nohrm_hrm.gpx"))
	assert.NoFileExists(t, filepath.Join(fx.dir, "short_hrm.gpx"))
	require.Len(t, up.paths, 1)
	assert.Equal(t, filepath.Join(fx.dir, "ride_hrm.gpx"), up.paths[0])
}

func TestRunMergeConcatenatesInInputOrder(t *testing.T) {
	fx := rideAndWalk(t)
	up := &fakeUploader{}

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, Merge: true, Uploader: up, Workers: 2})
	require.NoError(t, err)

	merged := filepath.Join(fx.dir, "ride_walk.gpx")
	assert.Equal(t, merged, res.Merged)
	require.Len(t, up.paths, 1)
	assert.Equal(t, merged, up.paths[0])
	assert.Equal(t, []int{90, 93, 70, 71}, heartRatesOf(t, merged))
	assert.FileExists(t, filepath.Join(fx.dir, "ride_hrm.gpx"))
	require.Len(t, res.Uploads, 1)
	assert.Equal(t, "merged file", res.Uploads[0].Source)
	assert.Equal(t, "https://www.strava.com/activities/101", res.Uploads[0].Status.ActivityURL())
}

func TestRunRemovesTemporaryFiles(t *testing.T) {
	fx := rideAndWalk(t)
	tmp := t.TempDir()
	up := &fakeUploader{}

	res, err := Run(context.Background(), Options{Files: fx.files, Merge: true, Uploader: up, TempDir: tmp})
	require.NoError(t, err)

	require.Len(t, up.contents, 1)
	assert.Contains(t, up.contents[0], "TrackPointExtension")
	assert.True(t, strings.HasPrefix(up.paths[0], tmp))
	assert.NoFileExists(t, res.Merged)

	left, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.NoFileExists(t, filepath.Join(fx.dir, "ride_hrm.gpx"))
}

func TestRunUploadsFIT(t *testing.T) {
	fx := rideAndWalk(t)
	up := &fakeUploader{}
	opts := strava.UploadOptions{DataType: strava.DataTypeFIT, ActivityType: strava.Ride, Private: true}

	_, err := Run(context.Background(), Options{Files: fx.files[:1], SaveMerged: true, Upload: opts, Uploader: up})
	require.NoError(t, err)

	require.Len(t, up.paths, 1)
	assert.Equal(t, filepath.Join(fx.dir, "ride_hrm.fit"), up.paths[0])
	assert.Equal(t, opts, up.opts[0])
	assert.Equal(t, ".FIT", up.contents[0][8:12])
}

func TestRunWritesSamples(t *testing.T) {
	fx := rideAndWalk(t)
	out := filepath.Join(t.TempDir(), "samples")

	res, err := Run(context.Background(), Options{Files: fx.files, SamplesOut: out})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "ride.parquet"), res.Files[0].Samples)
	assert.FileExists(t, filepath.Join(out, "ride.parquet"))
	assert.FileExists(t, filepath.Join(out, "walk.parquet"))
}

func TestRunSamplesFailureLeavesNoMergedFile(t *testing.T) {
	fx := rideAndWalk(t)
	out := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(out, "ride.parquet"), 0o755))
	up := &fakeUploader{}

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, SamplesOut: out, Uploader: up})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error exporting samples")
	require.Error(t, res.Files[0].Err)
	assert.NoFileExists(t, filepath.Join(fx.dir, "ride_hrm.gpx"))

	assert.FileExists(t, filepath.Join(fx.dir, "walk_hrm.gpx"))
	require.Len(t, up.paths, 1)
	assert.Equal(t, filepath.Join(fx.dir, "walk_hrm.gpx"), up.paths[0])
}

func TestRunArchivesUploads(t *testing.T) {
	fx := rideAndWalk(t)
	arch := &fakeArchiver{}

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, Uploader: &fakeUploader{}, Archiver: arch})
	require.NoError(t, err)
	assert.Len(t, arch.paths, 2)
	assert.Equal(t, "strvup/ride_hrm.gpx", res.Uploads[0].ArchiveKey)
}

func TestRunUploadFailureSkipsArchive(t *testing.T) {
	fx := rideAndWalk(t)
	arch := &fakeArchiver{}
	up := &fakeUploader{err: errors.New("duplicate")}

	res, err := Run(context.Background(), Options{Files: fx.files, SaveMerged: true, Uploader: up, Archiver: arch})
	require.Error(t, err)
	assert.ErrorContains(t, err, "duplicate")
	assert.Empty(t, arch.paths)
	require.Len(t, res.Uploads, 2)
	assert.Error(t, res.Uploads[0].Err)
}

func TestRunCancelled(t *testing.T) {
	fx := rideAndWalk(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Run(ctx, Options{Files: fx.files, SaveMerged: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Failed())
}

func TestRunRequiresFiles(t *testing.T) {
	_, err := Run(context.Background(), Options{TZ: time.UTC})
	assert.Error(t, err)
}
