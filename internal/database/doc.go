// Package database provides SQLite-based storage for levelcrawl.
//
// The CrawlDB stores:
//   - Fetched pages, used as the page cache between runs
//   - Crawl runs with their visited addresses and failures
//
// The database is a single file in the XDG data directory, opened through
// the CGO-free modernc.org/sqlite driver. Every method takes a context and
// is safe for concurrent use; writes are serialized on one connection.
package database
