// Package report renders finished crawl runs.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for terminal display
//   - JSONWriter and FullJSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown with a mermaid chart, for sharing
//
// Every writer renders a single run (Write) and a list of saved runs
// (WriteHistory). NewWriter picks a writer by Format.
package report
