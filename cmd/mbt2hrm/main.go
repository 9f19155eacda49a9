// Command mbt2hrm converts heart-rate exports of Mi Band Tools (CSV) or the
// Fitbit intraday API (JSON) into minimal HRM files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ilardm/strvup/pkg/fitbit"
	"github.com/ilardm/strvup/pkg/gpx"
	"github.com/ilardm/strvup/pkg/hrm"
	"github.com/ilardm/strvup/pkg/miband"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const (
	formatMiBand = "miband"
	formatFitbit = "fitbit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	inputFormat string
	date        string
	tz          string
	verbosity   int
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "mbt2hrm [flags] INPUT OUTPUT.hrm",
		Short:         "Convert a Mi Band Tools or Fitbit heart-rate export to HRM",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(cmd.ErrOrStderr(), opts.verbosity)
			if err := convert(args[0], args[1], opts); err != nil {
				slog.Error("conversion failed", "input", args[0], "error", err)
				return err
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.inputFormat, "input-format", formatMiBand, "input format, miband or fitbit")
	flags.StringVar(&opts.date, "date", "", "day of a fitbit intraday export without a date, YYYY-MM-DD")
	flags.StringVar(&opts.tz, "tz", "+0000", "timezone of the input timestamps, [+-]HHMM")
	flags.CountVarP(&opts.verbosity, "verbose", "v", "verbosity, repeat for more")
	return cmd
}

func convert(input, output string, opts options) error {
	loc, err := gpx.ParseOffset(opts.tz)
	if err != nil {
		return errors.Wrap(err, "invalid --tz")
	}

	f, err := os.Open(input)
	if err != nil {
		return errors.Wrap(err, "error opening input")
	}
	defer f.Close()

	samples, err := read(f, opts, loc)
	if err != nil {
		return errors.Wrapf(err, "error reading %s", input)
	}
	if len(samples) == 0 {
		return fmt.Errorf("%s contains no heart-rate samples", input)
	}
	slog.Info("read samples", "input", input, "samples", len(samples))

	filled := hrm.FillGaps(samples)
	slog.Debug("filled gaps", "samples", len(filled), "start", filled[0].Time)
	if err := hrm.WriteFile(output, filled); err != nil {
		return errors.Wrapf(err, "error writing %s", output)
	}
	slog.Info("wrote hrm", "output", output)
	return nil
}

func read(r io.Reader, opts options, loc *time.Location) (map[time.Time]float64, error) {
	switch opts.inputFormat {
	case formatMiBand:
		return miband.ReadCSV(r, loc)
	case formatFitbit:
		var day time.Time
		if opts.date != "" {
			var err error
			if day, err = time.Parse("2006-01-02", opts.date); err != nil {
				return nil, errors.Wrap(err, "invalid --date")
			}
		}
		return fitbit.ReadIntraday(r, day, loc)
	}
	return nil, fmt.Errorf("unknown input format %q, expected %s or %s", opts.inputFormat, formatMiBand, formatFitbit)
}

func configureLogging(w io.Writer, verbosity int) {
	level := slog.LevelWarn
	switch {
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity > 1:
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})))
}
