package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the elements of a report.
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Section   *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Good      *color.Color
	Warn      *color.Color
	Bad       *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Section:   color.New(color.FgBlue, color.Bold),
		Label:     color.New(color.FgWhite),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Good:      color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Bad:       color.New(color.FgRed, color.Bold),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

// ForcedColorScheme returns the default scheme with colors enabled even when
// the output is not a terminal.
func ForcedColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Title, s.Rule, s.Section, s.Label, s.Value, s.Latency,
		s.Good, s.Warn, s.Bad, s.Dim, s.Highlight,
	}
}

// rateColor picks the color of a failure ratio.
func (s *ColorScheme) rateColor(failureRate float64) *color.Color {
	switch {
	case failureRate > 0.05:
		return s.Bad
	case failureRate > 0.01:
		return s.Warn
	default:
		return s.Good
	}
}
