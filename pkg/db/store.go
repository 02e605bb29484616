package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DBExecutor is an interface that allows functions to accept *sql.DB, *sql.Conn or *sql.Tx.
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Supported database/sql driver names.
const (
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverModernc = "sqlite"  // modernc.org/sqlite (pure Go)
)

// Options configures a Repository.
type Options struct {
	// Driver is DriverMattn or DriverModernc. Empty means DriverMattn.
	Driver string
	// Path is the SQLite database file.
	Path string
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration
}

// ErrInvalidEntry is returned by SaveBook for entries with an empty word or a count below 1.
var ErrInvalidEntry = errors.New("invalid frequency entry")

// StorageError reports a failure of the underlying database.
type StorageError struct {
	Op    string
	Title string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("storage: %s %q: %v", e.Op, e.Title, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Repository maps book titles to their top word counts.
type Repository struct {
	db          *sql.DB
	path        string
	busyTimeout time.Duration
	locks       *titleLocks
}

// Open opens the database described by opts. The schema is not created; call InitSchema.
func Open(opts Options) (*Repository, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverMattn
	}
	if driver != DriverMattn && driver != DriverModernc {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}
	if strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("database path must be non-empty")
	}

	conn, err := sql.Open(driver, opts.Path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	return &Repository{
		db:          conn,
		path:        opts.Path,
		busyTimeout: opts.BusyTimeout,
		locks:       newTitleLocks(),
	}, nil
}

// Path returns the database file path.
func (r *Repository) Path() string { return r.path }

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	return r.db.Close()
}

// acquire checks out a dedicated connection for one operation. Callers must close it.
func (r *Repository) acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if r.busyTimeout > 0 {
		ms := r.busyTimeout.Milliseconds()
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", ms)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

// InitSchema creates the books and frequencies tables if they do not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	conn, err := r.acquire(ctx)
	if err != nil {
		return &StorageError{Op: "init schema", Err: err}
	}
	defer conn.Close()

	if err := InitDB(ctx, conn); err != nil {
		return &StorageError{Op: "init schema", Err: err}
	}
	return nil
}

// SaveBook stores entries as the word counts of title, replacing whatever was
// stored for that title before. The replacement happens in one transaction.
func (r *Repository) SaveBook(ctx context.Context, title string, entries []WordFreq) error {
	for _, e := range entries {
		if e.Word == "" || e.Freq < 1 {
			return fmt.Errorf("%w: word %q freq %d", ErrInvalidEntry, e.Word, e.Freq)
		}
	}

	unlock := r.locks.lock(title)
	defer unlock()

	conn, err := r.acquire(ctx)
	if err != nil {
		return &StorageError{Op: "save book", Title: title, Err: err}
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "save book", Title: title, Err: err}
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if err := upsertBook(ctx, tx, title); err != nil {
		return &StorageError{Op: "save book", Title: title, Err: err}
	}
	if err := replaceFrequencies(ctx, tx, title, entries); err != nil {
		return &StorageError{Op: "save book", Title: title, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save book", Title: title, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// GetBook returns the stored word counts for title, most frequent first.
// It reports false when no counts are stored for the title.
func (r *Repository) GetBook(ctx context.Context, title string) ([]WordFreq, bool, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, false, &StorageError{Op: "get book", Title: title, Err: err}
	}
	defer conn.Close()

	out, err := getFrequencies(ctx, conn, title, MaxEntries)
	if err != nil {
		return nil, false, &StorageError{Op: "get book", Title: title, Err: err}
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

// upsertBook inserts the book row unless it already exists.
func upsertBook(ctx context.Context, db DBExecutor, title string) error {
	if _, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO books (title) VALUES (?)`, title); err != nil {
		return fmt.Errorf("upsert book: %w", err)
	}
	return nil
}

// replaceFrequencies deletes all rows for title and inserts entries in order.
func replaceFrequencies(ctx context.Context, db DBExecutor, title string, entries []WordFreq) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM frequencies WHERE title = ?`, title); err != nil {
		return fmt.Errorf("delete frequencies: %w", err)
	}
	for _, e := range entries {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO frequencies (title, word, freq) VALUES (?, ?, ?)`,
			title, e.Word, e.Freq,
		); err != nil {
			return fmt.Errorf("insert frequency %q: %w", e.Word, err)
		}
	}
	return nil
}

// getFrequencies returns up to limit rows for title. Equal counts come back in insertion order.
func getFrequencies(ctx context.Context, db DBExecutor, title string, limit int) ([]WordFreq, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT word, freq FROM frequencies WHERE title = ? ORDER BY freq DESC, rowid ASC LIMIT ?`,
		title, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WordFreq
	for rows.Next() {
		var wf WordFreq
		if err := rows.Scan(&wf.Word, &wf.Freq); err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListTitles returns every stored title in alphabetical order.
func (r *Repository) ListTitles(ctx context.Context) ([]string, error) {
	conn, err := r.acquire(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list titles", Err: err}
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT title FROM books ORDER BY title`)
	if err != nil {
		return nil, &StorageError{Op: "list titles", Err: err}
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, &StorageError{Op: "list titles", Err: err}
		}
		titles = append(titles, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list titles", Err: err}
	}
	return titles, nil
}

// titleLocks serializes writers of the same title within one process.
type titleLocks struct {
	mu sync.Mutex
	m  map[string]*titleLock
}

type titleLock struct {
	mu   sync.Mutex
	refs int
}

func newTitleLocks() *titleLocks {
	return &titleLocks{m: make(map[string]*titleLock)}
}

// lock blocks until title is free and returns the matching unlock.
func (l *titleLocks) lock(title string) func() {
	l.mu.Lock()
	tl, ok := l.m[title]
	if !ok {
		tl = &titleLock{}
		l.m[title] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.m, title)
		}
		l.mu.Unlock()
	}
}
