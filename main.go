package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilardm/strvup/pkg/archive"
	"github.com/ilardm/strvup/pkg/config"
	"github.com/ilardm/strvup/pkg/gpx"
	strvuphttp "github.com/ilardm/strvup/pkg/http"
	"github.com/ilardm/strvup/pkg/http/oauth"
	"github.com/ilardm/strvup/pkg/http/rate"
	"github.com/ilardm/strvup/pkg/pipeline"
	"github.com/ilardm/strvup/pkg/strava"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
)

const creator = "strvup"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		verbosity  int
		configFile string
	)
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "strvup [flags] FILE.gpx...",
		Short: "Merge gpx and hrm files and upload them to Strava",
		Long: `strvup merges every FILE.gpx with the heart-rate recording FILE.hrm next to
it and uploads the merged track to Strava.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(cmd.ErrOrStderr(), verbosity)
			return v.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			err = run(ctx, cfg, args, verbosity)
			if err != nil {
				slog.Error("run failed", "error", err)
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.String("tz", "+0000", "timezone to use for all timestamps, [+-]HHMM")
	flags.CountVarP(&verbosity, "verbose", "v", "verbosity, repeat for more (-vvv dumps http traffic)")
	flags.String("oauth", "~/.config/strvup/oauth.json", "OAuth config path")
	flags.String("type", "", fmt.Sprintf("activity type, one of %v", strava.ActivityTypes))
	flags.Bool("no-upload", false, "do not upload merged files")
	flags.Bool("save-merged", false, "save merged gpx+hrm next to the inputs as NAME_hrm.gpx")
	flags.Bool("merge", false, "merge multiple files into one")
	flags.String("format", "gpx", "upload data type, gpx or fit")
	flags.Bool("public", false, "do not mark uploaded activities private")
	flags.String("samples-out", "", "directory to write NAME.parquet sample tables to")
	flags.String("archive-bucket", "", "S3 bucket to archive uploaded files in")
	flags.String("archive-prefix", "strvup", "S3 key prefix of archived files")
	flags.String("archive-region", "us-east-1", "AWS region of the archive bucket")
	flags.Int("workers", 0, "files merged concurrently (default number of CPUs)")
	flags.String("metrics-file", "", "write Prometheus metrics of the run to this file")
	flags.Duration("poll-interval", strava.DefaultPollInterval, "interval between upload status checks")
	flags.Int("max-polls", strava.DefaultMaxPolls, "upload status checks before giving up")
	flags.StringVar(&configFile, "config", "", "config file (yaml, json or toml)")
	return cmd
}

func run(ctx context.Context, cfg config.Config, files []string, verbosity int) error {
	tz, err := gpx.ParseOffset(cfg.TZ)
	if err != nil {
		return errors.Wrap(err, "invalid --tz")
	}
	activityType, err := strava.ParseActivityType(cfg.ActivityType)
	if err != nil {
		return errors.Wrap(err, "invalid --type")
	}
	dataType, err := strava.ParseDataType(cfg.Format)
	if err != nil {
		return errors.Wrap(err, "invalid --format")
	}

	opts := pipeline.Options{
		Files:      files,
		TZ:         tz,
		Creator:    creator,
		SaveMerged: cfg.SaveMerged,
		Merge:      cfg.Merge,
		Upload: strava.UploadOptions{
			ActivityType: activityType,
			DataType:     dataType,
			Private:      !cfg.Public,
		},
		SamplesOut: cfg.SamplesOut,
		Workers:    cfg.Workers,
	}

	if cfg.NoUpload {
		slog.Debug("no upload requested")
	} else {
		slog.Info("check strava authorization")
		uploader, err := newUploader(ctx, cfg, verbosity)
		if err != nil {
			return err
		}
		opts.Uploader = uploader
	}

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewS3Archiver(cfg.ArchiveBucket, cfg.ArchivePrefix, cfg.ArchiveRegion)
		if err != nil {
			return errors.Wrap(err, "error creating archiver")
		}
		opts.Archiver = archiver
	}

	res, runErr := pipeline.Run(ctx, opts)
	if cfg.MetricsFile != "" && res != nil {
		recordRun(res)
		if err := writeMetrics(cfg.MetricsFile); err != nil {
			slog.Error("error writing metrics", "file", cfg.MetricsFile, "error", err)
		}
	}
	return runErr
}

func newUploader(ctx context.Context, cfg config.Config, verbosity int) (*strava.Client, error) {
	fc, err := oauth.LoadFileConfig(cfg.OAuthPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading %s", cfg.OAuthPath)
	}
	if verbosity >= 3 {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{
			Transport: strvuphttp.LogTransport(http.DefaultTransport),
		})
	}

	conf := oauth.NewConfig(fc)
	conf.RateLimiter = rate.NewFromHeader(rate.StravaHeaderKeys)
	conf.InstrumentTransport = instrumentTransport(rate.StravaHeaderKeys)
	cache, err := oauth.NewJSONFileTokenCache(cfg.OAuthPath)
	if err != nil {
		return nil, errors.Wrap(err, "error creating token cache")
	}
	if err := conf.SetTokenCache(ctx, cache); err != nil {
		return nil, errors.Wrap(err, "error setting token cache")
	}
	if err := oauth.EnsureAuthorized(ctx, conf, oauth.BrowserOpener); err != nil {
		return nil, errors.Wrap(err, "error authorizing strava client")
	}
	client, err := conf.Client(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "error creating http client")
	}

	uploader := strava.NewClient(client)
	uploader.PollInterval = cfg.PollInterval
	uploader.MaxPolls = cfg.MaxPolls
	return uploader, nil
}
