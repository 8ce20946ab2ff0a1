package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/levelcrawl/internal/model"
)

// FileName is the name of the database file inside the database directory.
const FileName = "levelcrawl.db"

// timeLayout is the fixed-width UTC layout of stored timestamps, so that
// they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned when a crawl run does not exist.
var ErrRunNotFound = errors.New("crawl run not found")

// CrawlDB provides SQLite-based storage for fetched pages and crawl runs.
//
// The pages table is the page cache used by fetch.CachingFetcher; the
// crawl_runs and crawl_errors tables hold the crawl history.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the CrawlDB stored in dbDir.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer, and the crawler saves pages from
	// several fetch workers at once.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

// Path returns the path of the database file.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (cdb *CrawlDB) createTables() error {
	schema := `
	-- Pages are cached fetch results keyed by the requested address
	CREATE TABLE IF NOT EXISTS pages (
		address TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		headers TEXT,
		body BLOB,
		hash TEXT,
		fetched_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pages_fetched_at ON pages(fetched_at);

	-- Crawl runs record one traversal each
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		depth INTEGER NOT NULL,
		downloaders INTEGER NOT NULL,
		extractors INTEGER NOT NULL,
		per_host INTEGER NOT NULL,
		excludes TEXT,
		started_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		visited TEXT NOT NULL,
		interrupted INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON crawl_runs(seed);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON crawl_runs(started_at);

	-- Crawl errors are the failed addresses of a run
	CREATE TABLE IF NOT EXISTS crawl_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		address TEXT NOT NULL,
		op TEXT NOT NULL,
		message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_errors_run ON crawl_errors(run_id);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SavePage stores page under address, replacing any previous entry.
func (cdb *CrawlDB) SavePage(ctx context.Context, address string, page *model.Page) error {
	headersJSON, err := json.Marshal(page.Headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers: %w", err)
	}

	fetchedAt := page.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	query := `
	INSERT INTO pages (address, url, status_code, content_type, headers, body, hash, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		url = excluded.url,
		status_code = excluded.status_code,
		content_type = excluded.content_type,
		headers = excluded.headers,
		body = excluded.body,
		hash = excluded.hash,
		fetched_at = excluded.fetched_at
	`

	_, err = cdb.db.ExecContext(ctx, query,
		address,
		page.URL,
		page.StatusCode,
		page.ContentType,
		string(headersJSON),
		page.Raw,
		page.Hash,
		fetchedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save page %s: %w", address, err)
	}
	return nil
}

// LoadPage returns the page stored under address. ok is false when there
// is none.
func (cdb *CrawlDB) LoadPage(ctx context.Context, address string) (*model.Page, bool, error) {
	query := `
	SELECT url, status_code, content_type, headers, body, hash, fetched_at
	FROM pages
	WHERE address = ?
	`

	var page model.Page
	var headersJSON sql.NullString
	var fetchedAt string

	err := cdb.db.QueryRowContext(ctx, query, address).Scan(
		&page.URL,
		&page.StatusCode,
		&page.ContentType,
		&headersJSON,
		&page.Raw,
		&page.Hash,
		&fetchedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load page %s: %w", address, err)
	}

	page.FetchedAt = parseTimestamp(fetchedAt)

	if headersJSON.Valid && headersJSON.String != "" && headersJSON.String != "null" {
		if err := json.Unmarshal([]byte(headersJSON.String), &page.Headers); err != nil {
			return nil, false, fmt.Errorf("failed to parse headers: %w", err)
		}
	}

	return &page, true, nil
}

// DeletePagesBefore removes cached pages fetched before cutoff and returns
// how many were removed.
func (cdb *CrawlDB) DeletePagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := cdb.db.ExecContext(ctx,
		`DELETE FROM pages WHERE fetched_at < ?`,
		cutoff.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pages: %w", err)
	}
	return result.RowsAffected()
}

// CountPages returns the number of cached pages.
func (cdb *CrawlDB) CountPages(ctx context.Context) (int, error) {
	var count int
	if err := cdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pages: %w", err)
	}
	return count, nil
}

// SaveRun stores run and its failures in one transaction, sets run.ID and
// returns it.
func (cdb *CrawlDB) SaveRun(ctx context.Context, run *model.CrawlRun) (int64, error) {
	excludesJSON, err := json.Marshal(run.Excludes)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize excludes: %w", err)
	}
	visited := run.Visited
	if visited == nil {
		visited = []string{}
	}
	visitedJSON, err := json.Marshal(visited)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize visited addresses: %w", err)
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after Commit
	}()

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (seed, depth, downloaders, extractors, per_host, excludes, started_at, duration_ns, visited, interrupted, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.Seed,
		run.Depth,
		run.Downloaders,
		run.Extractors,
		run.PerHost,
		string(excludesJSON),
		run.StartedAt.UTC().Format(timeLayout),
		int64(run.Duration),
		string(visitedJSON),
		run.Interrupted,
		run.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert crawl run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get crawl run id: %w", err)
	}

	for _, f := range run.Failures {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO crawl_errors (run_id, address, op, message) VALUES (?, ?, ?, ?)`,
			id, f.Address, f.Op, f.Message,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert crawl error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}

	run.ID = id
	return id, nil
}

// GetRun returns the crawl run with the given id, or ErrRunNotFound.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (*model.CrawlRun, error) {
	row := cdb.db.QueryRowContext(ctx, `
	SELECT id, seed, depth, downloaders, extractors, per_host, excludes, started_at, duration_ns, visited, interrupted, error
	FROM crawl_runs
	WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := cdb.loadFailures(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent crawl runs, newest first. An empty seed
// lists runs of every seed. limit <= 0 means no limit.
func (cdb *CrawlDB) ListRuns(ctx context.Context, seed string, limit int) ([]*model.CrawlRun, error) {
	query := `
	SELECT id, seed, depth, downloaders, extractors, per_host, excludes, started_at, duration_ns, visited, interrupted, error
	FROM crawl_runs
	WHERE (? = '' OR seed = ?)
	ORDER BY started_at DESC, id DESC
	`
	args := []any{seed, seed}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}

	var runs []*model.CrawlRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate crawl runs: %w", err)
	}
	// The single connection must be free before the failures are queried.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close rows: %w", err)
	}

	for _, run := range runs {
		if err := cdb.loadFailures(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// DeleteRun removes a crawl run and its failures.
func (cdb *CrawlDB) DeleteRun(ctx context.Context, id int64) error {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM crawl_errors WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete crawl errors: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM crawl_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete crawl run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}

	return tx.Commit()
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.CrawlRun, error) {
	var run model.CrawlRun
	var excludesJSON, visitedJSON sql.NullString
	var errText sql.NullString
	var startedAt string
	var durationNS int64

	err := row.Scan(
		&run.ID,
		&run.Seed,
		&run.Depth,
		&run.Downloaders,
		&run.Extractors,
		&run.PerHost,
		&excludesJSON,
		&startedAt,
		&durationNS,
		&visitedJSON,
		&run.Interrupted,
		&errText,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan crawl run: %w", err)
	}

	run.StartedAt = parseTimestamp(startedAt)
	run.Duration = time.Duration(durationNS)
	run.Error = errText.String

	if excludesJSON.Valid && excludesJSON.String != "" {
		if err := json.Unmarshal([]byte(excludesJSON.String), &run.Excludes); err != nil {
			return nil, fmt.Errorf("failed to parse excludes: %w", err)
		}
	}
	if visitedJSON.Valid && visitedJSON.String != "" {
		if err := json.Unmarshal([]byte(visitedJSON.String), &run.Visited); err != nil {
			return nil, fmt.Errorf("failed to parse visited addresses: %w", err)
		}
	}

	return &run, nil
}

func (cdb *CrawlDB) loadFailures(ctx context.Context, run *model.CrawlRun) error {
	rows, err := cdb.db.QueryContext(ctx,
		`SELECT address, op, message FROM crawl_errors WHERE run_id = ? ORDER BY address`,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to load crawl errors: %w", err)
	}
	defer rows.Close()

	run.Failures = []model.CrawlFailure{}
	for rows.Next() {
		var f model.CrawlFailure
		var message sql.NullString
		if err := rows.Scan(&f.Address, &f.Op, &message); err != nil {
			return fmt.Errorf("failed to scan crawl error: %w", err)
		}
		f.Message = message.String
		run.Failures = append(run.Failures, f)
	}
	return rows.Err()
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	timeLayout,                // what this package writes
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
