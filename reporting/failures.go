package reporting

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/acarl005/stripansi"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

const (
	errorKeyStderrChars = 100
	detailStdoutLines   = 20
	detailStderrLines   = 10
)

// FailureGroup collects failures that share a return code and stderr prefix.
type FailureGroup struct {
	Key   string
	Count int
	First types.RunOutcome
}

// ErrorKey groups a failure by return code and the first characters of its
// ANSI-stripped stderr.
func ErrorKey(o types.RunOutcome) string {
	key := fmt.Sprintf("RC:%d", o.ExitCode)
	stderr := strings.TrimSpace(stripansi.Strip(o.Stderr))
	if stderr == "" {
		return key
	}
	if r := []rune(stderr); len(r) > errorKeyStderrChars {
		stderr = string(r[:errorKeyStderrChars])
	}
	return key + " - " + strings.ReplaceAll(stderr, "\n", " ")
}

// GroupFailures groups failures by ErrorKey, in order of first occurrence.
func GroupFailures(failures []types.RunOutcome) []FailureGroup {
	var groups []FailureGroup
	index := make(map[string]int)
	for _, f := range failures {
		key := ErrorKey(f)
		i, ok := index[key]
		if !ok {
			index[key] = len(groups)
			groups = append(groups, FailureGroup{Key: key, Count: 1, First: f})
			continue
		}
		groups[i].Count++
	}
	return groups
}

// FailureBreakdown renders the failure analysis for a session: a table of
// failure groups, then the first failure in detail. In verbose mode the first
// failure of every group is shown.
func FailureBreakdown(failures []types.RunOutcome, verbose bool) string {
	if len(failures) == 0 {
		return ""
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Found %s failures\n\n", humanize.Comma(int64(len(failures))))

	groups := GroupFailures(failures)
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.SetTitle("Failure Analysis")
	t.AppendHeader(table.Row{"Error Type", "Test", "Outcome", "Count"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Error Type", WidthMax: 110, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Count", Align: text.AlignRight},
	})
	for _, g := range groups {
		t.AppendRow(table.Row{g.Key, g.First.Identity.String(), g.First.Kind.Label(), humanize.Comma(int64(g.Count))})
	}
	t.SetStyle(table.StyleDefault)
	t.Render()

	details := []types.RunOutcome{failures[0]}
	if verbose {
		details = details[:0]
		for _, g := range groups {
			details = append(details, g.First)
		}
	}
	for i, o := range details {
		buf.WriteString("\n")
		buf.WriteString(FailureDetail(i+1, o))
	}
	if !verbose && len(failures) > 1 {
		fmt.Fprintf(&buf, "\n... and %s more failures.\n", humanize.Comma(int64(len(failures)-1)))
	}
	return buf.String()
}

// FailureDetail renders one failure with truncated output.
func FailureDetail(n int, o types.RunOutcome) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Failure #%d: %s\n", n, o.Identity)
	fmt.Fprintf(&b, "Outcome: %s\n", o.Kind.Label())
	fmt.Fprintf(&b, "Return Code: %d", o.ExitCode)
	if o.Signal != "" {
		fmt.Fprintf(&b, " (%s)", o.Signal)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(o.Elapsed))
	if strings.TrimSpace(o.Stdout) != "" {
		b.WriteString("\nStandard Output:\n")
		b.WriteString(TruncateLines(strings.TrimRight(o.Stdout, "\n"), detailStdoutLines))
		b.WriteString("\n")
	}
	if strings.TrimSpace(o.Stderr) != "" {
		b.WriteString("\nStandard Error:\n")
		b.WriteString(TruncateLines(strings.TrimRight(o.Stderr, "\n"), detailStderrLines))
		b.WriteString("\n")
	}
	if o.Truncated {
		b.WriteString("(captured output was truncated)\n")
	}
	return b.String()
}
