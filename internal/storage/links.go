package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateLink inserts a link into the link store.
func (s *Storage) CreateLink(ctx context.Context, l Link) error {
	if l.ID == "" || l.OwnerID == "" {
		return errors.New("link id and owner id are required")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO links (id, owner_id, title, url, created_at) VALUES (?, ?, ?, ?, ?)
`, l.ID, l.OwnerID, l.Title, l.URL, toMillis(l.CreatedAt))
	if err != nil {
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// GetLink looks up a link by id. Returns ErrNotFound if it does not exist.
func (s *Storage) GetLink(ctx context.Context, id string) (Link, error) {
	var l Link
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
SELECT id, owner_id, title, url, created_at FROM links WHERE id = ?
`, id).Scan(&l.ID, &l.OwnerID, &l.Title, &l.URL, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Link{}, ErrNotFound
		}
		return Link{}, fmt.Errorf("get link: %w", err)
	}
	l.CreatedAt = fromMillis(createdAt)
	return l, nil
}

// CountLinks returns the number of links an owner has.
func (s *Storage) CountLinks(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// TopLinks returns an owner's links ranked by click fact records with
// from <= created_at < to. Links without clicks in the window are omitted.
func (s *Storage) TopLinks(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]LinkClicks, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT l.id, l.title, l.url, COUNT(e.id) AS clicks
FROM links l
JOIN analytics_events e ON e.link_id = l.id
WHERE l.owner_id = ? AND e.kind = ? AND e.created_at >= ? AND e.created_at < ?
GROUP BY l.id, l.title, l.url
ORDER BY clicks DESC, l.id ASC
LIMIT ?
`, ownerID, string(KindClick), toMillis(from), toMillis(to), limit)
	if err != nil {
		return nil, fmt.Errorf("top links: %w", err)
	}
	defer rows.Close()

	var out []LinkClicks
	for rows.Next() {
		var lc LinkClicks
		if err := rows.Scan(&lc.LinkID, &lc.Title, &lc.URL, &lc.Clicks); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
