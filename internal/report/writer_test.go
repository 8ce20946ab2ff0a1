package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/levelcrawl/internal/model"
)

// createTestRun creates a run with sample data for testing.
func createTestRun() *model.CrawlRun {
	return &model.CrawlRun{
		ID:          7,
		Seed:        "http://example.com/",
		Depth:       2,
		Downloaders: 4,
		Extractors:  2,
		PerHost:     1,
		Excludes:    []string{"logout"},
		StartedAt:   time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		Duration:    2500 * time.Millisecond,
		Visited:     []string{"http://example.com/", "http://example.com/about"},
		Failures: []model.CrawlFailure{
			{Address: "http://example.com/broken", Op: "fetch", Message: "GET http://example.com/broken: 404 Not Found"},
			{Address: "http://example.com/bad.html", Op: "extract", Message: "malformed document"},
		},
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	t.Run("complete run", func(t *testing.T) {
		t.Parallel()

		s := Summarize(createTestRun())
		if s.Status != StatusComplete {
			t.Errorf("Status = %q, want %q", s.Status, StatusComplete)
		}
		if s.Visited != 2 || s.Failed != 2 {
			t.Errorf("Visited=%d Failed=%d, want 2 and 2", s.Visited, s.Failed)
		}
		if s.FailuresByOp["fetch"] != 1 || s.FailuresByOp["extract"] != 1 {
			t.Errorf("FailuresByOp = %v", s.FailuresByOp)
		}
	})

	t.Run("interrupted wins over error text", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Interrupted = true
		run.Error = "crawl interrupted: context canceled"
		if s := Summarize(run); s.Status != StatusInterrupted {
			t.Errorf("Status = %q, want %q", s.Status, StatusInterrupted)
		}
	})

	t.Run("engine error", func(t *testing.T) {
		t.Parallel()

		run := &model.CrawlRun{Seed: "http://example.com/", Error: "task panicked"}
		s := Summarize(run)
		if s.Status != StatusError {
			t.Errorf("Status = %q, want %q", s.Status, StatusError)
		}
		if s.FailuresByOp != nil {
			t.Errorf("FailuresByOp = %v, want nil", s.FailuresByOp)
		}
	})
}

func TestNewWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format Format
		want   string
	}{
		{FormatSimple, "*report.SimpleWriter"},
		{"", "*report.SimpleWriter"},
		{FormatJSON, "*report.FullJSONWriter"},
		{FormatMarkdown, "*report.MarkdownWriter"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			t.Parallel()

			w, err := NewWriter(tt.format, &bytes.Buffer{}, "test")
			if err != nil {
				t.Fatalf("NewWriter() error = %v", err)
			}
			var got string
			switch w.(type) {
			case *SimpleWriter:
				got = "*report.SimpleWriter"
			case *FullJSONWriter:
				got = "*report.FullJSONWriter"
			case *MarkdownWriter:
				got = "*report.MarkdownWriter"
			}
			if got != tt.want {
				t.Errorf("NewWriter(%q) = %T, want %s", tt.format, w, tt.want)
			}
		})
	}

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()

		_, err := NewWriter("xml", &bytes.Buffer{}, "test")
		if !errors.Is(err, ErrUnknownFormat) {
			t.Errorf("NewWriter(xml) error = %v, want ErrUnknownFormat", err)
		}
	})
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestRun())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("Write() = %d, buffer has %d bytes", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"LEVELCRAWL REPORT",
			"Seed:           http://example.com/",
			"Duration:       2.5s",
			"4 downloaders, 2 extractors, 1 per host",
			"Excludes:       logout",
			"Status:         Complete",
			"VISITED:  2",
			"FAILED:   2",
			"extract: 1",
			"fetch:   1",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q\n%s", want, output)
			}
		}
	})

	t.Run("lists failures", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "[!] http://example.com/broken") {
			t.Error("expected failed address")
		}
		if !strings.Contains(output, "fetch: GET http://example.com/broken: 404 Not Found") {
			t.Error("expected failure message with stage")
		}
	})

	t.Run("visited addresses only when verbose", func(t *testing.T) {
		t.Parallel()

		var quiet, verbose bytes.Buffer
		if _, err := NewSimpleWriter(&quiet).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSimpleWriter(&verbose, WithVerbose(true)).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(quiet.String(), "[+] http://example.com/about") {
			t.Error("quiet output should not list visited addresses")
		}
		if !strings.Contains(verbose.String(), "[+] http://example.com/about") {
			t.Error("verbose output should list visited addresses")
		}
	})

	t.Run("empty sections", func(t *testing.T) {
		t.Parallel()

		run := &model.CrawlRun{Seed: "http://example.com/", Depth: 1}

		var hidden, shown bytes.Buffer
		if _, err := NewSimpleWriter(&hidden).Write(run); err != nil {
			t.Fatal(err)
		}
		if _, err := NewSimpleWriter(&shown, WithShowEmpty(true), WithVerbose(true)).Write(run); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(hidden.String(), "FAILURES") {
			t.Error("empty failures section should be hidden by default")
		}
		if !strings.Contains(shown.String(), "No failures") || !strings.Contains(shown.String(), "No addresses visited") {
			t.Errorf("expected empty sections to be shown\n%s", shown.String())
		}
	})

	t.Run("interrupted status", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Interrupted = true

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(run); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "INTERRUPTED (partial results)") {
			t.Error("expected interrupted status")
		}
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Error = "level 1: task panicked"

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(run); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "ERROR - level 1: task panicked") {
			t.Error("expected error status")
		}
	})

	t.Run("history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory([]*model.CrawlRun{createTestRun()}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "#7") || !strings.Contains(output, "2 visited, 2 failed") {
			t.Errorf("unexpected history output\n%s", output)
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory(nil); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "No crawl runs recorded") {
			t.Error("expected empty history message")
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("compact output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}

		var got model.CrawlRun
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Seed != "http://example.com/" || len(got.Visited) != 2 || len(got.Failures) != 2 {
			t.Errorf("decoded run = %+v", got)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("compact output should be a single line")
		}
	})

	t.Run("indented output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent("", "\t")).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "\n\t\"seed\"") {
			t.Errorf("expected tab indentation\n%s", buf.String())
		}
	})

	t.Run("empty history is an array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteHistory(nil); err != nil {
			t.Fatal(err)
		}
		if strings.TrimSpace(buf.String()) != "[]" {
			t.Errorf("WriteHistory(nil) = %q, want []", buf.String())
		}
	})
}

func TestFullJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("wraps run with version and summary", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewFullJSONWriter(&buf, "v1.2.3", WithPrettyPrint()).Write(createTestRun()); err != nil {
			t.Fatal(err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if got.Version != "v1.2.3" {
			t.Errorf("Version = %q", got.Version)
		}
		if got.Run == nil || got.Run.ID != 7 {
			t.Errorf("Run = %+v", got.Run)
		}
		if got.Summary.Visited != 2 || got.Summary.Failed != 2 || got.Summary.Status != StatusComplete {
			t.Errorf("Summary = %+v", got.Summary)
		}
	})

	t.Run("history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		runs := []*model.CrawlRun{createTestRun(), createTestRun()}
		if _, err := NewFullJSONWriter(&buf, "dev").WriteHistory(runs); err != nil {
			t.Fatal(err)
		}

		var got []JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 2 || got[1].Version != "dev" {
			t.Errorf("history = %+v", got)
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestRun()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# levelcrawl Report",
			"`http://example.com/`",
			"## Summary",
			"mermaid",
			"Crawl Outcome",
			"Failed (fetch)",
			"## Visited",
			"`http://example.com/about`",
			"## Failures",
			"malformed document",
			"✅ Complete",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("output missing %q", want)
			}
		}
	})

	t.Run("no chart for an empty run", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(&model.CrawlRun{Seed: "http://example.com/"}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if strings.Contains(output, "mermaid") {
			t.Error("empty run should not have a pie chart")
		}
		if !strings.Contains(output, "No addresses visited.") || !strings.Contains(output, "No failures.") {
			t.Error("expected empty section messages")
		}
	})

	t.Run("interrupted run", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Interrupted = true

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(run); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "Interrupted (partial results)") || !strings.Contains(output, "[!WARNING]") {
			t.Errorf("expected interrupted status and warning\n%s", output)
		}
	})

	t.Run("long failure message in details", func(t *testing.T) {
		t.Parallel()

		run := createTestRun()
		run.Failures[0].Message = strings.Repeat("x", 120)

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(run); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "<details>") {
			t.Error("expected details block for a truncated message")
		}
	})

	t.Run("history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteHistory([]*model.CrawlRun{createTestRun()}); err != nil {
			t.Fatal(err)
		}
		output := buf.String()
		if !strings.Contains(output, "# Crawl History") || !strings.Contains(output, "`http://example.com/`") {
			t.Errorf("unexpected history output\n%s", output)
		}
	})
}

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var text, js bytes.Buffer
	w := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

	n, err := w.Write(createTestRun())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != text.Len()+js.Len() {
		t.Errorf("Write() = %d, want %d", n, text.Len()+js.Len())
	}
	if text.Len() == 0 || js.Len() == 0 {
		t.Error("expected both writers to produce output")
	}

	text.Reset()
	js.Reset()
	if _, err := w.WriteHistory([]*model.CrawlRun{createTestRun()}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text.String(), "CRAWL HISTORY") || !strings.HasPrefix(js.String(), "[") {
		t.Error("expected history in both outputs")
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
	}

	for _, tt := range tests {
		if got := truncateString(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
