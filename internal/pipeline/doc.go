// Package pipeline runs a crawl job as a sequence of steps.
//
// A job is one model.CrawlRun: the traverse step crawls the run's seed with
// a shared crawler.Crawler and records the outcome in the run, and the
// persist step saves it to the history database. Persist is a cleanup step,
// so interrupted and failed runs are saved too.
//
// BatchProcessor runs jobs for several seeds concurrently, bounded with
// errgroup. Every job of a batch shares the same Crawler, so the per-origin
// limit holds across seeds.
package pipeline
