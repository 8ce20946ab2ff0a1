package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/levelcrawl/internal/model"
)

// SimpleWriter outputs human-readable text reports for terminal display.
// Plain ASCII only, so the output can be piped to files or other tools.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose lists every visited address instead of a count only.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables the list of visited addresses.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run in human-readable format.
func (w *SimpleWriter) Write(run *model.CrawlRun) (int, error) {
	var sb strings.Builder
	summary := Summarize(run)

	w.writeHeader(&sb, run, summary)
	w.writeSummary(&sb, summary)
	w.writeVisited(&sb, run)
	w.writeFailures(&sb, run)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteHistory outputs one line per run.
func (w *SimpleWriter) WriteHistory(runs []*model.CrawlRun) (int, error) {
	var sb strings.Builder

	sb.WriteString(rule("="))
	sb.WriteString("                          CRAWL HISTORY\n")
	sb.WriteString(rule("="))
	sb.WriteString("\n")

	if len(runs) == 0 {
		sb.WriteString("  No crawl runs recorded\n\n")
		return io.WriteString(w.output, sb.String())
	}

	for _, run := range runs {
		s := Summarize(run)
		fmt.Fprintf(&sb, "  #%-5d %s  %s\n", run.ID, run.StartedAt.Format(timeFormat), run.Seed)
		fmt.Fprintf(&sb, "         depth %d, %d visited, %d failed, %s (%s)\n",
			run.Depth, s.Visited, s.Failed, run.Duration.Round(time.Millisecond), s.Status)
	}
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the run parameters and status.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, run *model.CrawlRun, summary Summary) {
	sb.WriteString("\n")
	sb.WriteString(rule("="))
	sb.WriteString("                         LEVELCRAWL REPORT\n")
	sb.WriteString(rule("="))
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Seed:           %s\n", run.Seed)
	fmt.Fprintf(sb, "Started:        %s\n", run.StartedAt.Format(timeFormat))
	fmt.Fprintf(sb, "Duration:       %s\n", run.Duration.Round(time.Millisecond))
	fmt.Fprintf(sb, "Depth:          %d\n", run.Depth)
	fmt.Fprintf(sb, "Workers:        %d downloaders, %d extractors, %d per host\n",
		run.Downloaders, run.Extractors, run.PerHost)
	if len(run.Excludes) > 0 {
		fmt.Fprintf(sb, "Excludes:       %s\n", strings.Join(run.Excludes, ", "))
	}

	switch summary.Status {
	case StatusInterrupted:
		sb.WriteString("Status:         INTERRUPTED (partial results)\n")
	case StatusError:
		fmt.Fprintf(sb, "Status:         ERROR - %s\n", run.Error)
	default:
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

// writeSummary writes the tallies.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, summary Summary) {
	sb.WriteString(rule("-"))
	sb.WriteString("SUMMARY\n")
	sb.WriteString(rule("-"))
	sb.WriteString("\n")

	fmt.Fprintf(sb, "  VISITED:  %d\n", summary.Visited)
	fmt.Fprintf(sb, "  FAILED:   %d\n", summary.Failed)

	for _, op := range sortedOps(summary.FailuresByOp) {
		fmt.Fprintf(sb, "    %-8s %d\n", op+":", summary.FailuresByOp[op])
	}
	sb.WriteString("\n")
}

// writeVisited lists visited addresses in completion order.
func (w *SimpleWriter) writeVisited(sb *strings.Builder, run *model.CrawlRun) {
	if !w.verbose || (len(run.Visited) == 0 && !w.showEmpty) {
		return
	}

	sb.WriteString(rule("-"))
	sb.WriteString("VISITED\n")
	sb.WriteString(rule("-"))
	sb.WriteString("\n")

	if len(run.Visited) == 0 {
		sb.WriteString("  No addresses visited\n")
	}
	for _, address := range run.Visited {
		fmt.Fprintf(sb, "  [+] %s\n", address)
	}
	sb.WriteString("\n")
}

// writeFailures lists failed addresses with the failing stage.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, run *model.CrawlRun) {
	if len(run.Failures) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(rule("-"))
	sb.WriteString("FAILURES\n")
	sb.WriteString(rule("-"))
	sb.WriteString("\n")

	if len(run.Failures) == 0 {
		sb.WriteString("  No failures\n")
	}
	for _, f := range run.Failures {
		fmt.Fprintf(sb, "  [!] %s\n", f.Address)
		fmt.Fprintf(sb, "      %s: %s\n", f.Op, f.Message)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(rule("="))
	sb.WriteString("Report generated by levelcrawl\n")
	sb.WriteString("https://github.com/nao1215/levelcrawl\n")
	sb.WriteString(rule("="))
}

func rule(ch string) string {
	return strings.Repeat(ch, 70) + "\n"
}
