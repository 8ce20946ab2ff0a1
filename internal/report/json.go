package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/levelcrawl/internal/model"
)

// JSONWriter outputs runs in JSON format, for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint is WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run as a JSON object.
func (w *JSONWriter) Write(run *model.CrawlRun) (int, error) {
	return w.writeJSON(run)
}

// WriteHistory outputs the runs as a JSON array.
func (w *JSONWriter) WriteHistory(runs []*model.CrawlRun) (int, error) {
	if runs == nil {
		runs = []*model.CrawlRun{}
	}
	return w.writeJSON(runs)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

// JSONReport wraps a run with the generating version and its tallies.
type JSONReport struct {
	// Version is the levelcrawl version that generated this report.
	Version string `json:"version"`

	// Run is the crawl run.
	Run *model.CrawlRun `json:"run"`

	// Summary holds the tallies of Run.
	Summary Summary `json:"summary"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(run *model.CrawlRun, version string) *JSONReport {
	return &JSONReport{
		Version: version,
		Run:     run,
		Summary: Summarize(run),
	}
}

// FullJSONWriter outputs runs wrapped in JSONReport.
type FullJSONWriter struct {
	*JSONWriter

	// version is the levelcrawl version string.
	version string
}

// NewFullJSONWriter creates a writer for complete reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// Write outputs the run wrapped with metadata.
func (w *FullJSONWriter) Write(run *model.CrawlRun) (int, error) {
	return w.writeJSON(NewJSONReport(run, w.version))
}

// WriteHistory outputs every run wrapped with metadata.
func (w *FullJSONWriter) WriteHistory(runs []*model.CrawlRun) (int, error) {
	wrapped := make([]*JSONReport, 0, len(runs))
	for _, run := range runs {
		wrapped = append(wrapped, NewJSONReport(run, w.version))
	}
	return w.writeJSON(wrapped)
}
