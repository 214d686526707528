package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Storage provides database operations for Linkstat.
type Storage struct {
	db           *sql.DB
	writeMu      sync.Mutex
	queryTimeout time.Duration

	stmtInsertEvent    *sql.Stmt
	stmtIncrementDaily *sql.Stmt
}

// Options configures the Storage instance.
type Options struct {
	MaxConnections int
	QueryTimeout   time.Duration
}

// New creates a new Storage instance with default options.
// For custom options, use NewWithOptions.
func New(dbPath string) (*Storage, error) {
	return NewWithOptions(dbPath, Options{
		MaxConnections: 1,
		QueryTimeout:   30 * time.Second,
	})
}

// NewWithOptions opens dbPath, which is either a local SQLite file path or a
// libsql:// (or wss://) URL for a remote libSQL database.
func NewWithOptions(dbPath string, opts Options) (*Storage, error) {
	driver, dsn, err := dataSource(dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	maxConns := opts.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	queryTimeout := opts.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}

	s := &Storage{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func dataSource(dbPath string) (driver, dsn string, err error) {
	if strings.HasPrefix(dbPath, "libsql://") || strings.HasPrefix(dbPath, "wss://") {
		return "libsql", dbPath, nil
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return "", "", fmt.Errorf("create db dir: %w", err)
	}
	return "sqlite", dbPath + "?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", nil
}

func (s *Storage) migrate() error {
	schema := `
CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id);

CREATE TABLE IF NOT EXISTS analytics_events (
	id TEXT PRIMARY KEY,
	link_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	referrer TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT '',
	region TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	lat REAL NOT NULL DEFAULT 0,
	lon REAL NOT NULL DEFAULT 0,
	timezone TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL DEFAULT '',
	browser TEXT NOT NULL DEFAULT '',
	browser_version TEXT NOT NULL DEFAULT '',
	os TEXT NOT NULL DEFAULT '',
	is_bot INTEGER NOT NULL DEFAULT 0,
	referrer_source TEXT NOT NULL DEFAULT '',
	referrer_medium TEXT NOT NULL DEFAULT '',
	referrer_domain TEXT NOT NULL DEFAULT '',
	utm_source TEXT NOT NULL DEFAULT '',
	utm_medium TEXT NOT NULL DEFAULT '',
	utm_campaign TEXT NOT NULL DEFAULT '',
	utm_term TEXT NOT NULL DEFAULT '',
	utm_content TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_link_ts ON analytics_events(link_id, created_at);
CREATE INDEX IF NOT EXISTS idx_events_owner_ts ON analytics_events(owner_id, created_at);

CREATE TABLE IF NOT EXISTS analytics_summary (
	link_id TEXT NOT NULL,
	day TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	clicks INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
	views INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0),
	PRIMARY KEY (link_id, day)
);
CREATE INDEX IF NOT EXISTS idx_summary_owner_day ON analytics_summary(owner_id, day);
`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) prepareStatements() error {
	var err error

	s.stmtInsertEvent, err = s.db.Prepare(`
INSERT INTO analytics_events (id, link_id, owner_id, kind, ip, user_agent, referrer, country, country_code, region, city, lat, lon, timezone, device_type, browser, browser_version, os, is_bot, referrer_source, referrer_medium, referrer_domain, utm_source, utm_medium, utm_campaign, utm_term, utm_content, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return fmt.Errorf("prepare insert event: %w", err)
	}

	// The whole create-or-increment is one statement; concurrent callers for the
	// same (link_id, day) never read-modify-write in application code.
	s.stmtIncrementDaily, err = s.db.Prepare(`
INSERT INTO analytics_summary (link_id, day, owner_id, clicks, views)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(link_id, day) DO UPDATE SET
	clicks = clicks + excluded.clicks,
	views = views + excluded.views
`)
	if err != nil {
		return fmt.Errorf("prepare increment daily: %w", err)
	}

	return nil
}

// Close closes the database connection and prepared statements.
func (s *Storage) Close() error {
	if s.stmtInsertEvent != nil {
		s.stmtInsertEvent.Close()
	}
	if s.stmtIncrementDaily != nil {
		s.stmtIncrementDaily.Close()
	}
	return s.db.Close()
}

// QueryTimeout returns the configured query timeout duration.
func (s *Storage) QueryTimeout() time.Duration {
	return s.queryTimeout
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
