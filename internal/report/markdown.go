package report

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/levelcrawl/internal/model"
)

// MarkdownWriter outputs runs in Markdown format, built with
// nao1215/markdown. Tallies are drawn as a mermaid pie chart.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the run in Markdown format.
func (w *MarkdownWriter) Write(run *model.CrawlRun) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := Summarize(run)

	w.writeHeader(md, run, summary)
	w.writeSummary(md, summary)
	w.writeVisited(md, run)
	w.writeFailures(md, run)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteHistory outputs the runs as a table.
func (w *MarkdownWriter) WriteHistory(runs []*model.CrawlRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No crawl runs recorded.")
		md.PlainText("")
	} else {
		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			s := Summarize(run)
			rows = append(rows, []string{
				strconv.FormatInt(run.ID, 10),
				"`" + run.Seed + "`",
				run.StartedAt.Format(timeFormat),
				strconv.Itoa(run.Depth),
				strconv.Itoa(s.Visited),
				strconv.Itoa(s.Failed),
				string(s.Status),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"ID", "Seed", "Started", "Depth", "Visited", "Failed", "Status"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// writeHeader writes the run parameters table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.CrawlRun, summary Summary) {
	md.H1("levelcrawl Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", "`" + run.Seed + "`"},
		{"Started", run.StartedAt.Format(timeFormat)},
		{"Duration", run.Duration.Round(time.Millisecond).String()},
		{"Depth", strconv.Itoa(run.Depth)},
		{"Downloaders", strconv.Itoa(run.Downloaders)},
		{"Extractors", strconv.Itoa(run.Extractors)},
		{"Per host", strconv.Itoa(run.PerHost)},
	}
	if len(run.Excludes) > 0 {
		rows = append(rows, []string{"Excludes", "`" + strings.Join(run.Excludes, "`, `") + "`"})
	}
	rows = append(rows, []string{"Status", w.getStatusText(run, summary)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on run state.
func (w *MarkdownWriter) getStatusText(run *model.CrawlRun, summary Summary) string {
	switch summary.Status {
	case StatusInterrupted:
		return "⚠️ Interrupted (partial results)"
	case StatusError:
		return "❌ Error - " + run.Error
	default:
		return "✅ Complete"
	}
}

// writeSummary writes the tallies, a pie chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, summary Summary) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Visited", strconv.Itoa(summary.Visited)},
		{"Failed", strconv.Itoa(summary.Failed)},
	}
	for _, op := range sortedOps(summary.FailuresByOp) {
		rows = append(rows, []string{"Failed at " + op, strconv.Itoa(summary.FailuresByOp[op])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Addresses", "Count"},
		Rows:   rows,
	})
	md.PlainText("")

	if summary.Visited+summary.Failed > 0 {
		w.writePieChart(md, summary)
	}

	switch {
	case summary.Status == StatusInterrupted:
		md.Warningf("The crawl was interrupted. %d address(es) were visited before it stopped.", summary.Visited)
	case summary.Status == StatusError:
		md.Cautionf("The crawl stopped on an engine error after visiting %d address(es).", summary.Visited)
	case summary.Failed > 0:
		md.Importantf("%d address(es) could not be crawled.", summary.Failed)
	case summary.Visited == 0:
		md.Note("No addresses were visited.")
	default:
		md.Tip("Every reachable address was crawled.")
	}
	md.PlainText("")
}

// writePieChart writes a mermaid pie chart of visited versus failed.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Crawl Outcome"),
		piechart.WithShowData(true),
	)

	if summary.Visited > 0 {
		chart.LabelAndIntValue("Visited", uint64(summary.Visited))
	}
	for _, op := range sortedOps(summary.FailuresByOp) {
		chart.LabelAndIntValue("Failed ("+op+")", uint64(summary.FailuresByOp[op]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeVisited lists visited addresses in completion order.
func (w *MarkdownWriter) writeVisited(md *markdown.Markdown, run *model.CrawlRun) {
	md.H2("Visited")
	md.PlainText("")

	if len(run.Visited) == 0 {
		md.PlainText("No addresses visited.")
		md.PlainText("")
		return
	}

	items := make([]string, len(run.Visited))
	for i, address := range run.Visited {
		items[i] = "`" + address + "`"
	}
	md.BulletList(items...)
	md.PlainText("")
}

// writeFailures writes a table of failed addresses.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, run *model.CrawlRun) {
	md.H2("Failures")
	md.PlainText("")

	if len(run.Failures) == 0 {
		md.PlainText("No failures.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(run.Failures))
	for i, f := range run.Failures {
		rows[i] = []string{
			"`" + truncateString(f.Address, 80) + "`",
			f.Op,
			truncateString(f.Message, 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Address", "Stage", "Error"},
		Rows:   rows,
	})
	md.PlainText("")

	// Full messages for the ones the table cut short.
	for _, f := range run.Failures {
		if len(f.Message) > 80 {
			md.Details(f.Address, f.Message)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [levelcrawl](https://github.com/nao1215/levelcrawl)*")
}

func sortedOps(counts map[string]int) []string {
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}
