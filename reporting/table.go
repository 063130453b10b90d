package reporting

import (
	"bytes"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-deflake/types"
)

// TableOptions controls how the results table is rendered.
type TableOptions struct {
	Title string
	Color bool
}

// ResultsTable renders per-test statistics in selection order with a TOTAL
// footer.
func ResultsTable(session *types.RunSession, stats types.SessionStatistics, opts TableOptions) string {
	var buf bytes.Buffer

	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	if opts.Title != "" {
		t.SetTitle(opts.Title)
	}

	header := table.Row{"Test", "Attempts", "Passed", "Failed"}
	for _, k := range types.FailureKinds {
		header = append(header, k.Label())
	}
	header = append(header, "Success", "Min", "Median", "Mean", "Max")
	t.AppendHeader(header)

	configs := []table.ColumnConfig{
		{Name: "Test", WidthMax: 120, WidthMaxEnforcer: text.WrapSoft},
	}
	for _, name := range header[1:] {
		configs = append(configs, table.ColumnConfig{Name: name.(string), Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	for _, id := range session.Request.Selected {
		t.AppendRow(statsRow(id.String(), stats.PerTest[id.QualifiedName()]))
	}

	t.AppendFooter(statsRow("TOTAL", stats.Overall))
	t.SetCaption("status %s, wall time %s, throughput %.1f tests/sec, %d workers",
		session.Status(), FormatDuration(stats.Elapsed), stats.Overall.Throughput, session.Request.WorkerCount)

	switch {
	case !opts.Color:
		t.SetStyle(table.StyleDefault)
	case stats.Overall.FailureCount() > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	t.Render()
	return buf.String()
}

func statsRow(name string, s types.Statistics) table.Row {
	row := table.Row{
		name,
		humanize.Comma(int64(s.Attempts)),
		humanize.Comma(int64(s.Passes)),
		humanize.Comma(int64(s.FailureCount())),
	}
	for _, k := range types.FailureKinds {
		row = append(row, humanize.Comma(int64(s.Failures[k])))
	}
	if s.Attempts == 0 {
		return append(row, "-", "-", "-", "-", "-")
	}
	return append(row,
		FormatPercent(s.SuccessRate()),
		FormatDuration(s.Timing.Min),
		FormatDuration(s.Timing.Median),
		FormatDuration(s.Timing.Mean),
		FormatDuration(s.Timing.Max),
	)
}
