package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// Health checks database connectivity with a trivial query.
func (s *Storage) Health(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&n); err != nil {
		return err
	}
	if n != 1 {
		return errors.New("unexpected ping result")
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDatabaseStats returns row counts for all tables.
func (s *Storage) GetDatabaseStats(ctx context.Context) (DatabaseStats, error) {
	var stats DatabaseStats
	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM analytics_events", &stats.EventsCount},
		{"SELECT COUNT(*) FROM analytics_summary", &stats.RollupsCount},
		{"SELECT COUNT(*) FROM links", &stats.LinksCount},
	}

	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return stats, fmt.Errorf("query %q: %w", q.query, err)
		}
	}
	return stats, nil
}

// DBPath returns the database file path, or "" for remote databases.
func (s *Storage) DBPath() string {
	var seq int
	var name, path string
	if err := s.db.QueryRow("PRAGMA database_list").Scan(&seq, &name, &path); err != nil {
		return ""
	}
	return path
}

// DBFileSize returns the database file size in bytes.
func (s *Storage) DBFileSize() (int64, error) {
	dbPath := s.DBPath()
	if dbPath == "" || dbPath == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(dbPath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
