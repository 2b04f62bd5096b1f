package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/idiotf/entry-video-compress/internal/logging"
	"github.com/idiotf/entry-video-compress/internal/pipeline"
)

// progressSteps is the bar resolution; fractions are scaled onto it.
const progressSteps = 1000

// progressReporter renders pipeline events for one job at a time. On a
// terminal it draws a progress bar; elsewhere it logs sampled progress.
type progressReporter struct {
	out     io.Writer
	tty     bool
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	title   cases.Caser

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	name  string
	state pipeline.State
}

func newProgressReporter(out io.Writer, logger *slog.Logger) *progressReporter {
	return &progressReporter{
		out:     out,
		tty:     isTerminal(out),
		logger:  logging.NewComponentLogger(logger, "cli"),
		sampler: logging.NewProgressSampler(5),
		title:   cases.Title(language.Und),
	}
}

// start prepares the reporter for a new job and returns its listener.
func (p *progressReporter) start(name string) pipeline.Listener {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
	p.state = pipeline.StateConfig
	p.sampler.Reset()
	if p.tty {
		p.bar = progressbar.NewOptions(progressSteps,
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionSetDescription(p.describe()),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerHead:    "█",
				SaucerPadding: "░",
				BarStart:      "▐",
				BarEnd:        "▌",
			}),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionSetRenderBlankState(true),
		)
	}
	return pipeline.ListenerFunc(p.handle)
}

func (p *progressReporter) handle(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e := ev.(type) {
	case pipeline.StateEvent:
		p.state = e.State
		if p.bar != nil {
			p.bar.Describe(p.describe())
			return
		}
		if !e.State.Terminal() {
			p.logger.Info(p.describe(), logging.String("input", p.name))
		}
	case pipeline.ProgressEvent:
		percent := e.Fraction * 100
		if p.bar != nil {
			_ = p.bar.Set(int(e.Fraction * progressSteps))
			return
		}
		if p.sampler.ShouldLog(percent, string(p.state)) {
			p.logger.Info("conversion progress",
				logging.String("input", p.name),
				logging.String("state", string(p.state)),
				logging.Float64("percent", percent),
			)
		}
	case pipeline.SegmentEvent:
		if p.bar == nil {
			p.logger.Debug("archive segment written",
				logging.String("input", p.name),
				logging.Int("segment", e.Segment.Index+1),
				logging.Int("bytes", len(e.Segment.Data)),
			)
		}
	}
}

// finish closes the bar for the current job.
func (p *progressReporter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	if p.state == pipeline.StateDone {
		_ = p.bar.Finish()
	}
	fmt.Fprintln(p.out)
	p.bar = nil
}

func (p *progressReporter) describe() string {
	return fmt.Sprintf("%s: %s", p.name, stateLabel(p.title, p.state))
}

func stateLabel(title cases.Caser, state pipeline.State) string {
	return title.String(string(state))
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
