// Package reporting renders deflake sessions for humans: result tables,
// failure breakdowns, the discovered catalog and persisted session reports.
package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
)

// FormatDuration renders a duration the way every deflake summary does:
// milliseconds below a second, seconds below a minute, minutes after that.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	case d < time.Minute:
		return fmt.Sprintf("%.3fs", d.Seconds())
	default:
		minutes := int(d / time.Minute)
		rest := d - time.Duration(minutes)*time.Minute
		return fmt.Sprintf("%dm %.1fs", minutes, rest.Seconds())
	}
}

// FormatPercent renders a ratio in [0, 1] as a percentage.
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

// TruncateLines keeps the first max lines of s and notes how many were cut.
func TruncateLines(s string, max int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= max {
		return s
	}
	return strings.Join(lines[:max], "\n") + fmt.Sprintf("\n... (%d more lines)", len(lines)-max)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
