package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"background-picker/internal/logging"
	"background-picker/internal/metrics"
)

// Default timeout for ledger operations
const defaultTimeout = 5 * time.Second

// DefaultFileName is the ledger file created inside the cache root when no
// path is configured.
const DefaultFileName = "background-picker.db"

// Failure is a source image that could not be decoded.
type Failure struct {
	URI        string    `json:"uri"`
	MTime      int64     `json:"mtime"`
	Path       string    `json:"path"`
	Format     string    `json:"format,omitempty"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Run summarizes one batch pregeneration.
type Run struct {
	ID        int64         `json:"id"`
	StartedAt time.Time     `json:"startedAt"`
	Elapsed   time.Duration `json:"elapsed"`
	Root      string        `json:"root"`
	Class     string        `json:"class"`
	Cached    int           `json:"cached"`
	Generated int           `json:"generated"`
	Failed    int           `json:"failed"`
}

// Ledger is the failure and run history store.
type Ledger struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path. The parent directory is created
// if needed.
func Open(ctx context.Context, path string) (*Ledger, error) {
	logging.Debug("Ledger path: %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if err := diagnosePermissions(path); err != nil {
		logging.Warn("Ledger permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors when a batch
	// run and the server share the file
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close ledger after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	l := &Ledger{db: db, path: path}
	if err := l.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close ledger after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	if n, err := l.CountFailures(ctx); err == nil {
		metrics.LedgerFailuresRecorded.Set(float64(n))
	}
	return l, nil
}

func (l *Ledger) initialize(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { recordQuery("initialize_schema", start, err) }()

	schema := `
	CREATE TABLE IF NOT EXISTS failures (
		uri TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		path TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL,
		recorded_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_failures_recorded ON failures(recorded_at);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		root TEXT NOT NULL,
		class TEXT NOT NULL,
		cached INTEGER NOT NULL DEFAULT 0,
		generated INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = l.db.ExecContext(ctx, schema)
	return err
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordFailure remembers that f.URI could not be decoded at f.MTime,
// replacing any earlier record for the same URI.
func (l *Ledger) RecordFailure(ctx context.Context, f Failure) (err error) {
	start := time.Now()
	defer func() { recordQuery("record_failure", start, err) }()

	if f.URI == "" {
		return errors.New("failure has no URI")
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO failures (uri, mtime, path, format, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			mtime = excluded.mtime,
			path = excluded.path,
			format = excluded.format,
			reason = excluded.reason,
			recorded_at = excluded.recorded_at
	`, f.URI, f.MTime, f.Path, f.Format, f.Reason, f.RecordedAt.Unix())
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", f.URI, err)
	}
	l.refreshGauge(ctx)
	return nil
}

// KnownFailure reports whether uri is recorded as undecodable at exactly
// mtime.
func (l *Ledger) KnownFailure(ctx context.Context, uri string, mtime int64) (known bool, err error) {
	start := time.Now()
	defer func() { recordQuery("known_failure", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var recorded int64
	err = l.db.QueryRowContext(ctx, "SELECT mtime FROM failures WHERE uri = ?", uri).Scan(&recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up failure for %s: %w", uri, err)
	}
	return recorded == mtime, nil
}

// ClearFailure forgets any failure recorded for uri. Clearing an unknown URI
// is not an error.
func (l *Ledger) ClearFailure(ctx context.Context, uri string) (err error) {
	start := time.Now()
	defer func() { recordQuery("clear_failure", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, "DELETE FROM failures WHERE uri = ?", uri)
	if err != nil {
		return fmt.Errorf("clear failure for %s: %w", uri, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		l.refreshGauge(ctx)
	}
	return nil
}

// ListFailures returns recorded failures, most recent first. limit <= 0
// returns all of them.
func (l *Ledger) ListFailures(ctx context.Context, limit int) (failures []Failure, err error) {
	start := time.Now()
	defer func() { recordQuery("list_failures", start, err) }()

	if limit <= 0 {
		limit = -1
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT uri, mtime, path, format, reason, recorded_at
		FROM failures
		ORDER BY recorded_at DESC, uri
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var f Failure
		var recordedAt int64
		if err := rows.Scan(&f.URI, &f.MTime, &f.Path, &f.Format, &f.Reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan failure row: %w", err)
		}
		f.RecordedAt = time.Unix(recordedAt, 0)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// CountFailures returns the number of recorded failures.
func (l *Ledger) CountFailures(ctx context.Context) (n int, err error) {
	start := time.Now()
	defer func() { recordQuery("count_failures", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM failures").Scan(&n)
	return n, err
}

// RecordRun appends a batch run summary and returns its ID.
func (l *Ledger) RecordRun(ctx context.Context, r Run) (id int64, err error) {
	start := time.Now()
	defer func() { recordQuery("record_run", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO runs (started_at, elapsed_ms, root, class, cached, generated, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.StartedAt.Unix(), r.Elapsed.Milliseconds(), r.Root, r.Class, r.Cached, r.Generated, r.Failed)
	if err != nil {
		return 0, fmt.Errorf("record run: %w", err)
	}
	return res.LastInsertId()
}

// ListRuns returns the most recent runs, newest first.
func (l *Ledger) ListRuns(ctx context.Context, limit int) (runs []Run, err error) {
	start := time.Now()
	defer func() { recordQuery("list_runs", start, err) }()

	if limit <= 0 {
		limit = -1
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, started_at, elapsed_ms, root, class, cached, generated, failed
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		var r Run
		var startedAt, elapsedMS int64
		if err := rows.Scan(&r.ID, &startedAt, &elapsedMS, &r.Root, &r.Class, &r.Cached, &r.Generated, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (l *Ledger) refreshGauge(ctx context.Context) {
	if n, err := l.CountFailures(ctx); err == nil {
		metrics.LedgerFailuresRecorded.Set(float64(n))
	}
}

// recordQuery records ledger query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LedgerQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.LedgerQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// diagnosePermissions checks that the ledger directory is writable and warns
// about read-only database files.
func diagnosePermissions(path string) error {
	dir := filepath.Dir(path)

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("ledger directory not writable: %w", err)
	}
	_ = os.Remove(testFile) // Explicitly ignore cleanup error

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("Ledger file %s is read-only (mode %v); writes will fail", p, info.Mode())
		}
	}
	return nil
}
