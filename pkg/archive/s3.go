// Package archive keeps a copy of uploaded activity files in an S3 bucket.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// Putter is the subset of the S3 API the archiver needs.
type Putter interface {
	PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error)
}

// S3Archiver stores files below Prefix in Bucket.
type S3Archiver struct {
	Client Putter
	Bucket string
	Prefix string
	// Now is used to date the object keys.
	Now func() time.Time
}

// NewS3Archiver builds an archiver using the default AWS credential chain.
func NewS3Archiver(bucket, prefix, region string) (*S3Archiver, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &S3Archiver{
		Client: s3.New(sess),
		Bucket: bucket,
		Prefix: prefix,
		Now:    time.Now,
	}, nil
}

// Key returns the object key the file at localPath is stored under.
func (a *S3Archiver) Key(localPath string) string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return path.Join(a.Prefix, now().UTC().Format("2006/01/02"), filepath.Base(localPath))
}

// Archive uploads the file at localPath and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("error opening %s for archival: %w", localPath, err)
	}
	defer f.Close()

	key := a.Key(localPath)
	_, err = a.Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Body:   f,
		Bucket: aws.String(a.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object to S3: %w", err)
	}
	slog.Info("archived activity", "bucket", a.Bucket, "key", key)
	return key, nil
}
