package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/idiotf/entry-video-compress/internal/config"
	"github.com/idiotf/entry-video-compress/internal/history"
	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/output"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
	"github.com/idiotf/entry-video-compress/internal/preflight"
	"github.com/idiotf/entry-video-compress/internal/services"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var flags conversionFlags

	cmd := &cobra.Command{
		Use:   "convert <video>...",
		Short: "Convert videos into Entry project archives",
		Long: "Convert each video into an .ent archive that plays back the frames and audio " +
			"inside an Entry project. Files are converted one after another; flags override " +
			"the [conversion] section of the configuration file.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			job := *base
			if err := flags.apply(cmd.Flags(), &job); err != nil {
				return fmt.Errorf("%s: %w", services.MessageConfig, err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if err := convertPreflight(cmd.Context(), &job, args); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			conv, err := newConverter(&job, logger, cmd)
			if err != nil {
				return err
			}
			conv.history = openHistory(cmd.Context(), &job, conv.logger)
			defer conv.history.Close()
			return conv.runAll(runCtx, args)
		},
	}

	flags.bind(cmd.Flags())
	return cmd
}

// convertPreflight fails before any input is read when a binary, directory
// or input file is unusable.
func convertPreflight(ctx context.Context, cfg *config.Config, inputs []string) error {
	results := preflight.RunAll(ctx, cfg)
	for _, input := range inputs {
		results = append(results, preflight.CheckInputFile(input))
	}
	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	lines := make([]string, 0, len(failed))
	for _, r := range failed {
		lines = append(lines, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return fmt.Errorf("preflight failed:\n  %s", strings.Join(lines, "\n  "))
}

type converter struct {
	cfg      *config.Config
	base     pipeline.Options
	logger   *slog.Logger
	cmd      *cobra.Command
	progress *progressReporter
	// history is nil when the database could not be opened.
	history *history.Store
}

type conversionOutcome struct {
	input   string
	result  pipeline.Result
	paths   []string
	bytes   int64
	err     error
	started time.Time
}

func newConverter(cfg *config.Config, logger *slog.Logger, cmd *cobra.Command) (*converter, error) {
	opts, err := jobOptions(cfg)
	if err != nil {
		return nil, err
	}
	opts.Decoder = newDecoder(cfg, logger)
	opts.Logger = logger
	return &converter{
		cfg:      cfg,
		base:     opts,
		logger:   logging.NewComponentLogger(logger, "cli"),
		cmd:      cmd,
		progress: newProgressReporter(cmd.ErrOrStderr(), logger),
	}, nil
}

// runAll converts inputs sequentially. Cancellation stops the remaining
// inputs; other failures are reported and the next input still runs.
func (c *converter) runAll(ctx context.Context, inputs []string) error {
	outcomes := make([]conversionOutcome, 0, len(inputs))
	failures := 0
	for _, input := range inputs {
		if ctx.Err() != nil {
			break
		}
		outcome := c.convert(ctx, input)
		c.record(ctx, outcome)
		outcomes = append(outcomes, outcome)
		if outcome.err != nil {
			failures++
			fmt.Fprintf(c.cmd.ErrOrStderr(), "%s: %s\n", filepath.Base(input), services.UserMessage(outcome.err))
			if isCanceled(outcome.err) {
				break
			}
		}
	}

	fmt.Fprintln(c.cmd.OutOrStdout(), renderOutcomes(outcomes))

	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", services.ErrCanceled, ctx.Err())
	case failures > 0:
		return fmt.Errorf("%d of %d conversions failed", failures, len(inputs))
	default:
		return nil
	}
}

func (c *converter) convert(ctx context.Context, input string) conversionOutcome {
	outcome := conversionOutcome{input: input, started: time.Now()}

	outDir := c.cfg.Paths.OutputDir
	if strings.TrimSpace(outDir) == "" {
		outDir = filepath.Dir(input)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		outcome.err = services.Wrap(services.ErrRead, "output", "create directory", outDir, err)
		return outcome
	}
	writer, err := output.NewWriter(outDir, input)
	if err != nil {
		outcome.err = services.Wrap(services.ErrConfiguration, "output", "reserve name", output.ArchiveName(input), err)
		return outcome
	}
	writer.Supersede(c.previousOutputs(ctx, input))

	opts := c.base
	opts.Segments = writer
	opts.Listener = c.progress.start(filepath.Base(input))
	result, err := pipeline.Run(ctx, pipeline.Request{Path: input}, opts)
	c.progress.finish()
	outcome.result = result
	if err != nil {
		if derr := writer.Discard(); derr != nil {
			c.logger.Warn("discard partial output failed",
				logging.Error(derr),
				logging.String(logging.FieldEventType, "output_discard_failed"),
				logging.String(logging.FieldErrorHint, "remove leftover .partial files from the output directory"),
			)
		}
		outcome.err = err
		return outcome
	}

	paths, err := writer.Commit()
	if err != nil {
		_ = writer.Discard()
		outcome.err = services.Wrap(services.ErrEncode, "output", "commit archive", writer.Name(), err)
		return outcome
	}
	outcome.paths = paths
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil {
			outcome.bytes += info.Size()
		}
	}
	c.logger.Info("archive written",
		logging.String("input", input),
		logging.String("output", paths[0]),
		logging.Int("segments", len(paths)),
		logging.Int64("bytes", outcome.bytes),
	)
	return outcome
}

func openHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) *history.Store {
	store, err := history.Open(ctx, cfg)
	if err != nil {
		logging.WarnWithContext(logger, "conversion history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete history.db under log_dir to reset it"),
			logging.String(logging.FieldImpact, "conversions run without being recorded"),
		)
		return nil
	}
	return store
}

// historyKey is the input path as stored in the history database.
func historyKey(input string) string {
	if abs, err := filepath.Abs(input); err == nil {
		return abs
	}
	return input
}

// previousOutputs returns the archives written by the last successful
// conversion of input, so a rerun can replace them.
func (c *converter) previousOutputs(ctx context.Context, input string) []string {
	if c.history == nil {
		return nil
	}
	paths, err := c.history.LatestOutputs(ctx, historyKey(input))
	if err != nil {
		c.logger.Debug("previous outputs unavailable", logging.Error(err), logging.String("input", input))
		return nil
	}
	return paths
}

// record stores the outcome in the history database. Failures only warn.
func (c *converter) record(ctx context.Context, o conversionOutcome) {
	if c.history == nil {
		return
	}
	entry := history.Entry{
		JobID:       o.result.JobID,
		InputPath:   historyKey(o.input),
		Status:      history.StatusDone,
		Frames:      o.result.Frames,
		Tiles:       o.result.Tiles,
		Segments:    len(o.paths),
		FrameRate:   o.result.FrameRate,
		Duration:    o.result.Duration,
		Layout:      string(o.result.Layout),
		Policy:      o.result.Policy.String(),
		Audio:       o.result.Audio,
		Fallback:    o.result.Fallback,
		OutputPaths: o.paths,
		OutputBytes: o.bytes,
		StartedAt:   o.started,
		FinishedAt:  time.Now(),
	}
	if o.err != nil {
		entry.Status = history.StatusError
		if isCanceled(o.err) {
			entry.Status = history.StatusAborted
		}
		entry.ErrorMessage = o.err.Error()
	}
	// aborted runs are recorded after ctx is canceled
	if _, err := c.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		logging.WarnWithContext(c.logger, "record conversion history failed", "history_record_failed",
			logging.Error(err),
			logging.String("input", o.input),
			logging.String(logging.FieldImpact, "archive was written but is missing from history"),
		)
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, services.ErrCanceled) || errors.Is(err, context.Canceled)
}

func renderOutcomes(outcomes []conversionOutcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.err != nil {
			rows = append(rows, []string{filepath.Base(o.input), "-", "-", "-", "-", "-", services.UserMessage(o.err)})
			continue
		}
		archive := filepath.Base(o.paths[0])
		if len(o.paths) > 1 {
			archive = fmt.Sprintf("%s (+%d)", archive, len(o.paths)-1)
		}
		rows = append(rows, []string{
			filepath.Base(o.input),
			archive,
			strconv.Itoa(o.result.Frames),
			strconv.Itoa(o.result.Tiles),
			strconv.FormatFloat(o.result.FrameRate, 'f', -1, 64),
			humanize.IBytes(uint64(o.bytes)),
			o.result.Elapsed.Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]string{"Input", "Archive", "Frames", "Tiles", "FPS", "Size", "Elapsed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}
