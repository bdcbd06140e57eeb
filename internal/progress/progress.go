// Package progress reports the status of long running numeric loops. Reporters
// only observe; they never influence the loop.
package progress

import (
	"fmt"
	"io"
	"math"

	"go.uber.org/zap"
)

// Status is one progress update.
type Status struct {
	Stage string
	Step  int
	Total int
	// Loss is NaN when the stage has no loss.
	Loss float64
}

// Reporter receives progress updates.
type Reporter interface {
	Report(Status)
}

// Nop discards every update.
type Nop struct{}

func (Nop) Report(Status) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}

// LogReporter writes every n-th update, and the last one, at debug level.
type LogReporter struct {
	logger *zap.Logger
	every  int
}

// NewLogReporter returns a reporter logging through logger.
func NewLogReporter(logger *zap.Logger, every int) *LogReporter {
	if every <= 0 {
		every = 1
	}
	return &LogReporter{logger: logger, every: every}
}

func (r *LogReporter) Report(s Status) {
	if s.Step%r.every != 0 && s.Step != s.Total {
		return
	}
	fields := []zap.Field{
		zap.String("stage", s.Stage),
		zap.Int("step", s.Step),
		zap.Int("total", s.Total),
	}
	if !math.IsNaN(s.Loss) {
		fields = append(fields, zap.Float64("loss", s.Loss))
	}
	r.logger.Debug("progress", fields...)
}

// TerminalReporter rewrites a single progress line on w.
type TerminalReporter struct {
	w io.Writer
}

// NewTerminalReporter returns a reporter writing to w, usually os.Stderr.
func NewTerminalReporter(w io.Writer) *TerminalReporter {
	return &TerminalReporter{w: w}
}

func (r *TerminalReporter) Report(s Status) {
	pct := 100.0
	if s.Total > 0 {
		pct = float64(s.Step) / float64(s.Total) * 100
	}
	if math.IsNaN(s.Loss) {
		fmt.Fprintf(r.w, "\t%s: %.2f%%\r", s.Stage, pct)
	} else {
		fmt.Fprintf(r.w, "\t%s: %.2f%% - Loss: %.6f\r", s.Stage, pct, s.Loss)
	}
	if s.Step >= s.Total {
		fmt.Fprintln(r.w)
	}
}
