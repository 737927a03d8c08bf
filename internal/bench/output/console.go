// Package output renders benchmark reports for the terminal.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/squall/internal/bench/engine"
	"github.com/wesleyorama2/squall/internal/bench/scoreboard"
)

const (
	ruleWidth  = 64
	nameWidth  = 18
	ruleSymbol = "─"
)

// ConsoleConfig contains configuration for console output.
type ConsoleConfig struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer

	// NoColor disables colors regardless of the terminal
	NoColor bool

	// ForceColors enables colors even when not a TTY
	ForceColors bool

	// Intervals adds the per-interval scorecards of every target
	Intervals bool
}

// Console renders a run report as colored text.
type Console struct {
	writer    io.Writer
	colors    *ColorScheme
	intervals bool
}

// NewConsole creates a console renderer.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	var scheme *ColorScheme
	switch {
	case cfg.NoColor:
		scheme = NoColorScheme()
	case cfg.ForceColors:
		scheme = ForcedColorScheme()
	case isTerminal(cfg.Writer) && supportsColors():
		scheme = DefaultColorScheme()
	default:
		scheme = NoColorScheme()
	}

	return &Console{
		writer:    cfg.Writer,
		colors:    scheme,
		intervals: cfg.Intervals,
	}
}

// PrintReport writes the full report.
func (c *Console) PrintReport(r *engine.Report) {
	c.printHeader(r)

	c.section("Global")
	c.printCard(r.Global, "  ")
	c.writeln("")

	for i := range r.Targets {
		c.printTarget(&r.Targets[i])
	}

	if len(r.Aggregations) > 0 {
		c.section("Aggregations")
		for _, agg := range r.Aggregations {
			c.writeln(fmt.Sprintf("  %s", c.colors.Highlight.Sprint(agg.Name)))
			c.printCard(agg, "    ")
		}
		c.writeln("")
	}

	if len(r.Errors) > 0 {
		c.section("Errors")
		for _, e := range r.Errors {
			c.writeln(fmt.Sprintf("  %s %s", c.colors.Bad.Sprint("✗"), e))
		}
		c.writeln("")
	}
}

func (c *Console) printHeader(r *engine.Report) {
	status := c.colors.Good.Sprint("Completed ✓")
	if len(r.Errors) > 0 {
		status = c.colors.Bad.Sprint("Completed with errors ✗")
	}

	line := c.colors.Rule.Sprint(strings.Repeat(ruleSymbol, ruleWidth))
	c.writeln(line)
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(r.Name), status))
	c.writeln(line)
	if r.Description != "" {
		c.writeln(c.colors.Dim.Sprint(r.Description))
	}
	c.writeln("")

	c.field("Run ID", r.RunID)
	c.field("Phases", fmt.Sprintf("ramp-up %s | steady %s | ramp-down %s",
		formatDuration(r.Timing.RampUp),
		formatDuration(r.Timing.Duration),
		formatDuration(r.Timing.RampDown)))
	if !r.Timing.Start.IsZero() {
		c.field("Wall time", formatDuration(r.EndTime.Sub(r.Timing.Start)))
	}
	c.writeln("")
}

func (c *Console) printTarget(t *engine.TargetReport) {
	header := fmt.Sprintf("Target %s", t.Name)
	c.writeln(fmt.Sprintf("%s %s", c.colors.Section.Sprint(header),
		c.colors.Dim.Sprintf("[%s]", t.Generator)))

	c.writeln(fmt.Sprintf("  Agents: %s | Issued: %s | Generator errors: %s | Cycles: %s",
		c.colors.Value.Sprint(t.Agents),
		c.colors.Value.Sprint(formatNumber(t.OperationsIssued)),
		c.countColor(t.GeneratorErrors).Sprint(t.GeneratorErrors),
		c.colors.Value.Sprint(t.LoadCycles)))
	if t.AsyncSubmitted > 0 || t.AsyncRejected > 0 {
		c.writeln(fmt.Sprintf("  Async:  %s submitted, %s rejected",
			c.colors.Value.Sprint(formatNumber(t.AsyncSubmitted)),
			c.countColor(t.AsyncRejected).Sprint(formatNumber(t.AsyncRejected))))
	}
	if t.InvalidDefinitions > 0 {
		c.writeln(fmt.Sprintf("  %s %d schedule activations were invalid (see warnings)",
			c.colors.Warn.Sprint("!"), t.InvalidDefinitions))
	}
	if t.Statistics.Incomplete {
		c.writeln(fmt.Sprintf("  %s scoreboard did not stop in time; scorecards are unavailable",
			c.colors.Bad.Sprint("✗")))
	}
	c.writeln("")

	stats := t.Statistics
	c.printCard(stats.Final, "  ")
	c.printOperations(stats.Final.Operations, "  ")

	if c.intervals && len(stats.Intervals) > 0 {
		c.writeln(c.colors.Title.Sprint("  Intervals:"))
		for _, iv := range stats.Intervals {
			c.writeln(fmt.Sprintf("    %s %s", c.colors.Highlight.Sprint(iv.Name),
				c.colors.Dim.Sprintf("(%s)", formatDuration(iv.Duration))))
			c.printCard(iv, "      ")
		}
		c.writeln("")
	}

	if len(stats.WaitTimes) > 0 {
		c.printWaitTimes(stats.WaitTimes)
	}

	c.printDropOff(stats.DropOff)
}

// printCard writes the counters and loads of one scorecard.
func (c *Console) printCard(s scoreboard.CardStatistics, indent string) {
	failureRate := 0.0
	if done := s.TotalOpsSuccessful + s.TotalOpsFailed; done > 0 {
		failureRate = float64(s.TotalOpsFailed) / float64(done)
	}

	c.writeln(fmt.Sprintf("%sInitiated: %s | Successful: %s | Failed: %s (%s) | Late: %s",
		indent,
		c.colors.Value.Sprint(formatNumber(s.TotalOpsInitiated)),
		c.colors.Value.Sprint(formatNumber(s.TotalOpsSuccessful)),
		c.colors.rateColor(failureRate).Sprint(formatNumber(s.TotalOpsFailed)),
		c.colors.rateColor(failureRate).Sprintf("%.1f%%", failureRate*100),
		c.countColor(s.TotalOpsLate).Sprint(formatNumber(s.TotalOpsLate))))
	c.writeln(fmt.Sprintf("%sOffered: %s | Effective: %s | Avg response: %s",
		indent,
		c.colors.Value.Sprintf("%.2f ops/s", s.OfferedLoad),
		c.colors.Good.Sprintf("%.2f ops/s", s.EffectiveLoad),
		c.colors.Latency.Sprint(formatDurationShort(s.AverageResponseTime))))
}

func (c *Console) printOperations(ops []scoreboard.OperationStatistics, indent string) {
	if len(ops) == 0 {
		c.writeln("")
		return
	}

	c.writeln("")
	c.writeln(c.colors.Dim.Sprintf("%s%-*s %9s %8s %10s %8s %8s %8s %8s %8s",
		indent, nameWidth, "OPERATION", "OK", "FAILED", "OPS/S", "AVG", "P50", "P90", "P99", "MAX"))
	for _, op := range ops {
		failColor := c.countColor(op.Failed)
		c.writeln(fmt.Sprintf("%s%s %s %s %s %s %s %s %s %s",
			indent,
			c.colors.Label.Sprintf("%-*s", nameWidth, truncate(op.Name, nameWidth)),
			c.colors.Value.Sprintf("%9s", formatNumber(op.Succeeded)),
			failColor.Sprintf("%8s", formatNumber(op.Failed)),
			c.colors.Value.Sprintf("%10.2f", op.Throughput),
			c.colors.Latency.Sprintf("%8s", formatDurationShort(op.AverageResponseTime)),
			c.colors.Latency.Sprintf("%8s", formatDurationShort(op.P50)),
			c.colors.Latency.Sprintf("%8s", formatDurationShort(op.P90)),
			c.colors.Latency.Sprintf("%8s", formatDurationShort(op.P99)),
			c.colors.Latency.Sprintf("%8s", formatDurationShort(op.MaxResponseTime))))
	}
	c.writeln("")
}

func (c *Console) printWaitTimes(waits []scoreboard.WaitTimeStatistics) {
	c.writeln(c.colors.Title.Sprint("  Wait times:"))
	for _, w := range waits {
		c.writeln(fmt.Sprintf("    %s count %s | avg %s | p90 %s | p99 %s | max %s",
			c.colors.Label.Sprintf("%-*s", nameWidth, truncate(w.Name, nameWidth)),
			c.colors.Value.Sprint(formatNumber(w.Count)),
			c.colors.Latency.Sprint(formatDurationShort(w.AverageWait)),
			c.colors.Latency.Sprint(formatDurationShort(w.P90)),
			c.colors.Latency.Sprint(formatDurationShort(w.P99)),
			c.colors.Latency.Sprint(formatDurationShort(w.MaxWait))))
	}
	c.writeln("")
}

func (c *Console) printDropOff(d scoreboard.DropOffStatistics) {
	c.writeln(c.colors.Title.Sprint("  Result funnel:"))
	c.writeln(fmt.Sprintf("    Drop-offs: %s | Processed: %s | Rejected: %s",
		c.colors.Value.Sprint(formatNumber(d.DropOffs)),
		c.colors.Value.Sprint(formatNumber(d.Processed)),
		c.countColor(d.Rejected).Sprint(formatNumber(d.Rejected))))
	c.writeln(fmt.Sprintf("    Discarded: %s ramp-up, %s ramp-down | Lock wait avg %s, max %s",
		c.colors.Dim.Sprint(formatNumber(d.DiscardedRampUp)),
		c.colors.Dim.Sprint(formatNumber(d.DiscardedRampDown)),
		c.colors.Latency.Sprint(formatDurationShort(d.AverageLockWait)),
		c.colors.Latency.Sprint(formatDurationShort(d.MaxLockWait))))
	if d.SnapshotsDropped > 0 {
		c.writeln(fmt.Sprintf("    %s %s metric snapshots dropped",
			c.colors.Warn.Sprint("!"), formatNumber(d.SnapshotsDropped)))
	}
	c.writeln("")
}

func (c *Console) section(title string) {
	c.writeln(c.colors.Section.Sprint(title + ":"))
}

func (c *Console) field(label, value string) {
	c.writeln(fmt.Sprintf("%s %s", c.colors.Label.Sprintf("%-14s", label+":"), c.colors.Value.Sprint(value)))
}

// countColor is green for zero and yellow otherwise.
func (c *Console) countColor(n int64) *color.Color {
	if n == 0 {
		return c.colors.Good
	}
	return c.colors.Warn
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func truncate(s string, width int) string {
	if len(s) <= width {
		return s
	}
	return s[:width-1] + "…"
}
