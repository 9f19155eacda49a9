// Package pipeline runs a strvup batch: every GPX input is merged with its
// heart-rate recording, optionally concatenated, exported and uploaded.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/ilardm/strvup/pkg/export"
	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/ilardm/strvup/pkg/hrm"
	"github.com/ilardm/strvup/pkg/strava"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Run executes the batch. A failing input is logged and skipped, its siblings
// proceed. The returned error joins every failure of the run.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.Files) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	if opts.TZ == nil {
		opts.TZ = time.UTC
	}
	if opts.Creator == "" {
		opts.Creator = "strvup"
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.SamplesOut != "" {
		if err := os.MkdirAll(opts.SamplesOut, 0o755); err != nil {
			return nil, fmt.Errorf("error creating samples directory: %w", err)
		}
	}

	r := &runner{opts: opts}
	defer r.cleanup()

	res := &Result{Files: make([]FileResult, len(opts.Files))}
	g := new(errgroup.Group)
	g.SetLimit(opts.Workers)
	for i, input := range opts.Files {
		i, input := i, input
		g.Go(func() error {
			res.Files[i] = r.processFile(ctx, input)
			return nil
		})
	}
	g.Wait()

	var errs []error
	var uploads []UploadResult
	for _, f := range res.Files {
		if f.Err != nil {
			slog.Error("skipping file", "file", f.Input, "error", f.Err)
			errs = append(errs, f.Err)
			continue
		}
		uploads = append(uploads, UploadResult{Source: f.Input, Path: f.Output, doc: f.doc})
	}

	if opts.Merge && len(uploads) > 1 {
		merged, err := r.concatenate(res.Files, uploads)
		if err != nil {
			errs = append(errs, err)
			uploads = nil
		} else {
			res.Merged = merged.Path
			uploads = []UploadResult{merged}
		}
	}

	for i := range uploads {
		if err := r.deliver(ctx, &uploads[i]); err != nil {
			slog.Error("upload failed", "file", uploads[i].Source, "error", err)
			uploads[i].Err = err
			errs = append(errs, err)
		}
	}
	res.Uploads = uploads

	slog.Info("done", "files", len(res.Files), "failed", res.Failed(), "uploads", len(uploads))
	return res, stderrors.Join(errs...)
}

type runner struct {
	opts Options

	mutex     sync.Mutex
	temporary []string
}

// tempFile reserves a file in the temp directory which is removed at the end
// of the run.
func (r *runner) tempFile(ext string) (string, error) {
	f, err := os.CreateTemp(r.opts.TempDir, "strvup-*"+ext)
	if err != nil {
		return "", fmt.Errorf("error creating temporary file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("error closing temporary file: %w", err)
	}
	r.mutex.Lock()
	r.temporary = append(r.temporary, f.Name())
	r.mutex.Unlock()
	return f.Name(), nil
}

func (r *runner) cleanup() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, name := range r.temporary {
		slog.Debug("unlink", "file", name)
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			slog.Warn("error removing temporary file", "file", name, "error", err)
		}
	}
	r.temporary = nil
}

func (r *runner) processFile(ctx context.Context, input string) FileResult {
	basename := strings.TrimSuffix(input, filepath.Ext(input))
	res := FileResult{Input: input, HRM: basename + ".hrm"}
	if err := ctx.Err(); err != nil {
		res.Err = errors.Wrapf(err, "error processing %s", input)
		return res
	}
	slog.Info("process file", "file", input)

	doc, stats, err := r.merge(input, res.HRM)
	if err != nil {
		res.Err = errors.Wrapf(err, "error processing %s", input)
		return res
	}
	res.Stats = stats

	// export samples before the merged file is written
	if r.opts.SamplesOut != "" {
		samples := filepath.Join(r.opts.SamplesOut, filepath.Base(basename)+".parquet")
		if err := writeSamples(doc, samples); err != nil {
			res.Err = errors.Wrapf(err, "error exporting samples of %s", input)
			return res
		}
		res.Samples = samples
	}

	out := basename + "_hrm.gpx"
	if !r.opts.SaveMerged {
		if out, err = r.tempFile(".gpx"); err != nil {
			res.Err = errors.Wrapf(err, "error processing %s", input)
			return res
		}
	}
	slog.Debug("output file", "file", input, "output", out)
	if err := gpx.WriteFile(doc, out); err != nil {
		res.Err = errors.Wrapf(err, "error saving %s", input)
		return res
	}
	res.Output = out
	res.doc = doc
	return res
}

func (r *runner) merge(gpxPath, hrmPath string) (*etree.Document, gpx.MergeStats, error) {
	slog.Debug("parse gpx", "file", gpxPath)
	doc, err := gpx.ReadFile(gpxPath)
	if err != nil {
		return nil, gpx.MergeStats{}, err
	}
	if gpx.NeedsUpgrade(doc) {
		slog.Info("convert gpx 1.0 -> 1.1", "file", gpxPath)
		doc = gpx.Upgrade(doc)
	}

	slog.Debug("parse hrm", "file", hrmPath)
	rec, err := hrm.ParseFile(hrmPath)
	if err != nil {
		return nil, gpx.MergeStats{}, err
	}

	stats, err := gpx.MergeWithStats(doc, rec, r.opts.TZ)
	if err != nil {
		return nil, stats, err
	}
	gpx.Finalize(doc, r.opts.Creator)
	slog.Info("merged gpx and hrm", "file", gpxPath, "points", stats.Points)
	return doc, stats, nil
}

func writeSamples(doc *etree.Document, path string) error {
	points, err := gpx.Points(doc)
	if err != nil {
		return err
	}
	return export.WriteParquet(path, points)
}

// concatenate joins the merged tracks in input order. Saved concatenations are
// named after the joined input basenames, in the directory of the first input.
func (r *runner) concatenate(files []FileResult, uploads []UploadResult) (UploadResult, error) {
	var out string
	if r.opts.SaveMerged {
		names := make([]string, 0, len(files))
		for _, f := range files {
			if f.Err != nil {
				continue
			}
			base := filepath.Base(f.Input)
			names = append(names, strings.TrimSuffix(base, filepath.Ext(base)))
		}
		first := uploads[0].Source
		out = filepath.Join(filepath.Dir(first), strings.Join(names, "_")+filepath.Ext(first))
	} else {
		var err error
		if out, err = r.tempFile(".gpx"); err != nil {
			return UploadResult{}, err
		}
	}

	others := make([]*etree.Document, 0, len(uploads)-1)
	for _, u := range uploads[1:] {
		others = append(others, u.doc)
	}
	slog.Info("merge gpx files", "files", len(uploads), "output", out)
	merged, err := gpx.Concatenate(uploads[0].doc, others...)
	if err != nil {
		return UploadResult{}, errors.Wrap(err, "error merging files")
	}
	if err := gpx.WriteFile(merged, out); err != nil {
		return UploadResult{}, errors.Wrapf(err, "error saving merged file %s", out)
	}
	return UploadResult{Source: "merged file", Path: out, doc: merged}, nil
}

// deliver converts, uploads and archives one candidate.
func (r *runner) deliver(ctx context.Context, u *UploadResult) error {
	if r.opts.Upload.DataType == strava.DataTypeFIT {
		if err := r.convertFIT(u); err != nil {
			return err
		}
	}

	if r.opts.Uploader == nil {
		slog.Debug("no upload requested", "file", u.Path)
	} else {
		slog.Info("upload activity", "file", u.Source)
		status, err := r.opts.Uploader.Upload(ctx, u.Path, r.opts.Upload)
		u.Status = status
		if err != nil {
			return errors.Wrapf(err, "error uploading %s", u.Source)
		}
		if url := status.ActivityURL(); url != "" {
			slog.Info("please find your activity", "url", url)
		}
	}

	if r.opts.Archiver != nil {
		key, err := r.opts.Archiver.Archive(ctx, u.Path)
		if err != nil {
			return errors.Wrapf(err, "error archiving %s", u.Source)
		}
		u.ArchiveKey = key
	}
	return nil
}

func (r *runner) convertFIT(u *UploadResult) error {
	points, err := gpx.Points(u.doc)
	if err != nil {
		return errors.Wrapf(err, "error reading points of %s", u.Source)
	}
	out := strings.TrimSuffix(u.Path, filepath.Ext(u.Path)) + ".fit"
	if !r.opts.SaveMerged {
		if out, err = r.tempFile(".fit"); err != nil {
			return err
		}
	}
	if err := export.WriteFIT(out, points); err != nil {
		return errors.Wrapf(err, "error converting %s to fit", u.Source)
	}
	u.Path = out
	return nil
}
