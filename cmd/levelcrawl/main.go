// Package main provides the entry point for the levelcrawl CLI.
//
// levelcrawl crawls a web site level by level with bounded concurrency:
// a pool of downloaders, a pool of link extractors and a per-host limit.
//
// Usage:
//
//	levelcrawl crawl URL [depth [downloads [extractors [perHost]]]]
//	levelcrawl batch --list <file>
//	levelcrawl history [URL]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
