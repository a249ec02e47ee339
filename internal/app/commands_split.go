package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidsplit/client/internal/models"
	"github.com/vidsplit/client/internal/videos"
)

// freshnessMargin is how close to expiry an access token may be before a
// long upload starts with a refreshed one.
const freshnessMargin = time.Minute

// splitOptions are the split command's configuration flags.
type splitOptions struct {
	at               []string
	every            time.Duration
	chapters         bool
	format           string
	keyframeInterval float64
	noKeyframes      bool
	reencode         bool
	subtitleOffset   float64
}

func newSplitCommand(cc *commandContext) *cobra.Command {
	var (
		opts     splitOptions
		dryRun   bool
		download bool
		output   string
	)

	cmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Upload a video, split it and wait for the segments",
		Example: `  vidsplit split talk.mp4 --at 2:00 --at 5:00
  vidsplit split lecture.mkv --every 10m --format mkv --download
  vidsplit split album.mp4 --chapters --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			deps, err := cc.dependencies(ctx)
			if err != nil {
				return err
			}
			if err := requireSession(ctx, deps); err != nil {
				return err
			}
			file, err := videos.FileFromPath(args[0])
			if err != nil {
				return err
			}

			ctrl := newController(deps)
			defer ctrl.Close()

			deps.Session.EnsureFresh(ctx, freshnessMargin)
			ctrl.SelectFile(file)
			progress, finish := uploadProgress(cmd.ErrOrStderr(), file.Name, file.Size)
			err = ctrl.Upload(ctx, progress)
			finish()
			if err != nil {
				return err
			}

			if info, ok := ctrl.VideoInfo(); ok {
				fmt.Fprintln(out, renderVideoInfo(info))
			}
			if err := applySplitOptions(ctrl, opts); err != nil {
				return err
			}
			if segments := ctrl.Preview(); len(segments) > 0 {
				fmt.Fprintln(out, renderSegments(segments))
			}

			job, _ := ctrl.Job()
			if dryRun {
				fmt.Fprintf(out, "Dry run: job %s was uploaded but not submitted\n", job.ID)
				return nil
			}

			if err := ctrl.Submit(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "Submitted job %s, waiting for the backend\n", job.ID)

			final, err := ctrl.Wait(ctx)
			fmt.Fprintln(out, renderJob(final))
			if err != nil {
				return err
			}
			if !download {
				return nil
			}

			sink, err := newSink(ctx, deps.Config, output)
			if err != nil {
				return err
			}
			results, err := ctrl.DownloadAll(ctx, sink)
			printDownloads(out, results)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&opts.at, "at", nil, "Split point as MM:SS, H:MM:SS or seconds (repeatable)")
	flags.DurationVar(&opts.every, "every", 0, "Split into segments of this length (e.g. 5m)")
	flags.BoolVar(&opts.chapters, "chapters", false, "Split at the video's chapter markers")
	flags.StringVar(&opts.format, "format", "", "Output container: mp4, mkv or avi")
	flags.Float64Var(&opts.keyframeInterval, "keyframe-interval", 0, "Forced keyframe spacing in seconds (1-10)")
	flags.BoolVar(&opts.noKeyframes, "no-keyframes", false, "Do not force keyframes at split boundaries")
	flags.BoolVar(&opts.reencode, "reencode", false, "Re-encode instead of copying streams")
	flags.Float64Var(&opts.subtitleOffset, "subtitle-offset", 0, "Shift subtitles by this many seconds")
	flags.BoolVar(&dryRun, "dry-run", false, "Upload and preview the segments without submitting")
	flags.BoolVar(&download, "download", false, "Download every segment once the job completes")
	flags.StringVarP(&output, "output", "o", "", "Download directory (defaults to the bucket or download_dir)")
	return cmd
}

// applySplitOptions turns the command flags into controller edits.
func applySplitOptions(ctrl *videos.Controller, opts splitOptions) error {
	methods := 0
	if len(opts.at) > 0 {
		methods++
	}
	if opts.every > 0 {
		methods++
	}
	if opts.chapters {
		methods++
	}
	if methods > 1 {
		return errors.New("choose only one of --at, --every and --chapters")
	}

	switch {
	case opts.every > 0:
		if err := ctrl.SetMethod(models.MethodIntervals); err != nil {
			return err
		}
		if err := ctrl.SetInterval(opts.every.Seconds()); err != nil {
			return err
		}
	case opts.chapters:
		if err := ctrl.SetMethod(models.MethodChapters); err != nil {
			return err
		}
	default:
		for _, literal := range opts.at {
			if err := addSplitPoint(ctrl, literal); err != nil {
				return err
			}
		}
	}

	if opts.format != "" {
		if err := ctrl.SetOutputFormat(models.OutputFormat(strings.ToLower(opts.format))); err != nil {
			return err
		}
	}
	if opts.noKeyframes {
		if err := ctrl.SetForceKeyframes(false); err != nil {
			return err
		}
	}
	if opts.keyframeInterval != 0 {
		if err := ctrl.SetKeyframeInterval(opts.keyframeInterval); err != nil {
			return err
		}
	}
	if opts.reencode {
		if err := ctrl.SetPreserveQuality(false); err != nil {
			return err
		}
	}
	if opts.subtitleOffset != 0 {
		if err := ctrl.SetSubtitleOffset(opts.subtitleOffset); err != nil {
			return err
		}
	}
	return nil
}

func addSplitPoint(ctrl *videos.Controller, literal string) error {
	literal = strings.TrimSpace(literal)
	if strings.Contains(literal, ":") {
		return ctrl.AddTimeLiteral(literal)
	}
	seconds, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return fmt.Errorf("invalid split point %q: expected MM:SS, H:MM:SS or seconds", literal)
	}
	return ctrl.AddTimePoint(seconds)
}

func printDownloads(w io.Writer, results []videos.DownloadResult) {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		location := result.Location
		if result.Err != nil {
			location = "failed: " + result.Err.Error()
		}
		rows = append(rows, []string{result.File, location})
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"Segment", "Saved to"}, rows, nil))
	}
}
