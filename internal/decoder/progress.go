package decoder

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ProgressFunc receives a completion fraction in [0,1].
type ProgressFunc func(fraction float64)

// progressReporter clamps and de-duplicates fractions so callers only ever see
// non-decreasing values.
type progressReporter struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last float64
	sent bool
}

func newProgressReporter(fn ProgressFunc) *progressReporter {
	return &progressReporter{fn: fn}
}

func (p *progressReporter) report(fraction float64) {
	if p == nil || p.fn == nil {
		return
	}
	switch {
	case math.IsNaN(fraction) || fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent && fraction <= p.last {
		return
	}
	p.last = fraction
	p.sent = true
	p.fn(fraction)
}

// scanProgress consumes ffmpeg -progress key=value lines. duration is the
// media length in seconds; when unknown only the final "progress=end" is
// reported.
func scanProgress(r io.Reader, duration float64, rep *progressReporter) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if duration <= 0 {
				continue
			}
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 {
				continue
			}
			rep.report(float64(us) / 1e6 / duration)
		case "progress":
			if strings.TrimSpace(value) == "end" {
				rep.report(1)
			}
		}
	}
	return scanner.Err()
}
