package parser

import (
	"slices"
	"strings"
	"testing"
)

func parse(t *testing.T, base, html string) *ParseResult {
	t.Helper()

	parser, err := NewParser(base)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	result, err := parser.Parse(strings.NewReader(html))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return result
}

// TestParser tests HTML parsing functionality.
func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("resolves relative links against the page", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/dir/page", `<html><body>
			<a href="/root">Root</a>
			<a href="sibling">Sibling</a>
			<a href="../up">Up</a>
			<a href="http://other.test/x">Other</a>
		</body></html>`)

		want := []string{
			"http://example.com/root",
			"http://example.com/dir/sibling",
			"http://example.com/up",
			"http://other.test/x",
		}
		if !slices.Equal(result.Links, want) {
			t.Errorf("expected %v, got %v", want, result.Links)
		}
	})

	t.Run("honours base href", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/page", `<html><head>
			<base href="http://cdn.example.com/assets/">
		</head><body><a href="file.html">File</a></body></html>`)

		if !slices.Equal(result.Links, []string{"http://cdn.example.com/assets/file.html"}) {
			t.Errorf("unexpected links %v", result.Links)
		}
	})

	t.Run("collects link, area and frame references", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/", `<html><head>
			<link rel="stylesheet" href="/style.css">
		</head><body>
			<map><area href="/area"></map>
			<iframe src="/frame-a"></iframe>
			<frameset><frame src="/frame-b"></frameset>
		</body></html>`)

		for _, want := range []string{
			"http://example.com/style.css",
			"http://example.com/area",
			"http://example.com/frame-a",
		} {
			if !slices.Contains(result.Links, want) {
				t.Errorf("expected %s in %v", want, result.Links)
			}
		}
	})

	t.Run("skips unfetchable references", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/", `<html><body>
			<a href="javascript:void(0)">JS</a>
			<a href="JavaScript:alert(1)">JS upper</a>
			<a href="mailto:user@example.com">Mail</a>
			<a href="tel:+100">Phone</a>
			<a href="data:text/plain,hi">Data</a>
			<a href="#top">Fragment</a>
			<a href="">Empty</a>
			<a>No href</a>
		</body></html>`)

		if len(result.Links) != 0 {
			t.Errorf("expected no links, got %v", result.Links)
		}
	})

	t.Run("strips fragments and deduplicates", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/", `<html><body>
			<a href="/a#one">A1</a>
			<a href="/a#two">A2</a>
			<a href="http://example.com/a">A3</a>
			<a href="/b">B</a>
		</body></html>`)

		want := []string{"http://example.com/a", "http://example.com/b"}
		if !slices.Equal(result.Links, want) {
			t.Errorf("expected %v, got %v", want, result.Links)
		}
	})

	t.Run("tolerates malformed markup", func(t *testing.T) {
		t.Parallel()

		result := parse(t, "http://example.com/", `<html><body><div><a href="/ok">unclosed<p><a href="/next">`)
		if len(result.Links) != 2 {
			t.Errorf("expected 2 links, got %v", result.Links)
		}
	})
}

func TestNewParserInvalidBase(t *testing.T) {
	t.Parallel()

	if _, err := NewParser("://bad"); err == nil {
		t.Error("expected error for invalid base URL")
	}
}
