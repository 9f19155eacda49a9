package pipeline

import (
	"context"
	"time"

	"github.com/beevik/etree"
	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/ilardm/strvup/pkg/strava"
)

// Uploader sends a produced file to the activity service.
type Uploader interface {
	Upload(ctx context.Context, path string, opts strava.UploadOptions) (*strava.UploadStatus, error)
}

// Archiver keeps a copy of an uploaded file.
type Archiver interface {
	Archive(ctx context.Context, path string) (string, error)
}

// Options configures a batch run.
type Options struct {
	// Files are the GPX inputs. The heart-rate recording of NAME.gpx is NAME.hrm.
	Files []string
	TZ    *time.Location
	// Creator is stamped on the merged documents.
	Creator string
	// SaveMerged keeps merged files next to the inputs instead of in TempDir.
	SaveMerged bool
	// Merge concatenates all merged tracks into one upload.
	Merge bool
	// Upload carries the upload form. DataType fit converts tracks before upload.
	Upload strava.UploadOptions
	// Uploader is nil when nothing should be uploaded.
	Uploader Uploader
	// Archiver is nil when uploads are not archived.
	Archiver Archiver
	// SamplesOut is the directory NAME.parquet sample tables are written to.
	SamplesOut string
	Workers    int
	TempDir    string
}

// FileResult describes the merge of one input.
type FileResult struct {
	Input  string         `json:"input"`
	HRM    string         `json:"hrm"`
	Output string         `json:"output,omitempty"`
	Stats  gpx.MergeStats `json:"stats"`
	// Samples is the parquet sample table, if requested.
	Samples string `json:"samples,omitempty"`
	Err     error  `json:"-"`

	doc *etree.Document
}

// UploadResult describes one upload candidate.
type UploadResult struct {
	Source     string               `json:"source"`
	Path       string               `json:"path"`
	Status     *strava.UploadStatus `json:"status,omitempty"`
	ArchiveKey string               `json:"archive_key,omitempty"`
	Err        error                `json:"-"`

	doc *etree.Document
}

// Result collects what a run produced. Files keeps the input order.
type Result struct {
	Files   []FileResult   `json:"files"`
	Merged  string         `json:"merged,omitempty"`
	Uploads []UploadResult `json:"uploads"`
}

// Failed counts the inputs that could not be merged.
func (r *Result) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}
