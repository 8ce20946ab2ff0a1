// Package model defines the data structures shared by the fetcher, the
// page cache, the crawl history and the report writers.
//
// The main types are:
//   - Page: a fetched document, which knows how to list its outgoing links
//   - CrawlRun: a finished traversal as stored in the history database
//
// Keeping them here lets fetch, database and report depend on the same
// types without importing each other.
package model
