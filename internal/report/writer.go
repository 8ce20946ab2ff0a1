package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/levelcrawl/internal/model"
)

// ErrUnknownFormat is returned by NewWriter for an unsupported format.
var ErrUnknownFormat = errors.New("unknown report format")

// Format selects a report writer.
type Format string

const (
	// FormatSimple is plain text.
	FormatSimple Format = "simple"
	// FormatJSON is JSON wrapped with version and summary.
	FormatJSON Format = "json"
	// FormatMarkdown is Markdown.
	FormatMarkdown Format = "markdown"
)

// Writer outputs crawl runs.
type Writer interface {
	// Write outputs one run.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.CrawlRun) (int, error)

	// WriteHistory outputs a list of saved runs, newest first.
	WriteHistory(runs []*model.CrawlRun) (int, error)
}

// NewWriter returns the writer for format. version is embedded in formats
// that carry it.
func NewWriter(format Format, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatSimple, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MultiWriter writes to multiple Writers in order.
// It stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all configured Writers.
// Returns the total bytes written across all writers.
func (m *MultiWriter) Write(run *model.CrawlRun) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteHistory outputs the runs to all configured Writers.
func (m *MultiWriter) WriteHistory(runs []*model.CrawlRun) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteHistory(runs)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Status is the outcome of a run.
type Status string

const (
	// StatusComplete means every level was traversed.
	StatusComplete Status = "complete"
	// StatusInterrupted means the run was cancelled; results are partial.
	StatusInterrupted Status = "interrupted"
	// StatusError means the run stopped on an engine error.
	StatusError Status = "error"
)

// Summary holds the tallies of a run.
type Summary struct {
	Status       Status         `json:"status"`
	Visited      int            `json:"visited"`
	Failed       int            `json:"failed"`
	FailuresByOp map[string]int `json:"failures_by_op,omitempty"`
}

// Summarize computes the tallies of run.
func Summarize(run *model.CrawlRun) Summary {
	s := Summary{
		Status:  StatusComplete,
		Visited: len(run.Visited),
		Failed:  len(run.Failures),
	}
	if s.Failed > 0 {
		s.FailuresByOp = run.FailuresByOp()
	}
	switch {
	case run.Interrupted:
		s.Status = StatusInterrupted
	case run.Error != "":
		s.Status = StatusError
	}
	return s
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

const timeFormat = "2006-01-02 15:04:05 MST"

// truncateString truncates a string to maxLen bytes with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
