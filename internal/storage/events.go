package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const eventColumns = `id, link_id, owner_id, kind, ip, user_agent, referrer, country, country_code, region, city, lat, lon, timezone, device_type, browser, browser_version, os, is_bot, referrer_source, referrer_medium, referrer_domain, utm_source, utm_medium, utm_campaign, utm_term, utm_content, created_at`

// InsertEvent appends a fact record. Fact records are never updated.
func (s *Storage) InsertEvent(ctx context.Context, e Event) error {
	if e.ID == "" {
		return errors.New("event id is required")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.stmtInsertEvent.ExecContext(ctx,
		e.ID, e.LinkID, e.OwnerID, string(e.Kind), e.IP, e.UserAgent, e.Referrer,
		e.Country, e.CountryCode, e.Region, e.City, e.Latitude, e.Longitude, e.Timezone,
		e.DeviceType, e.Browser, e.BrowserVersion, e.OS, boolToInt(e.IsBot),
		e.ReferrerSource, e.ReferrerMedium, e.ReferrerDomain,
		e.UTMSource, e.UTMMedium, e.UTMCampaign, e.UTMTerm, e.UTMContent,
		toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// EventsForLink returns fact records for a link with from <= created_at < to,
// most recent first, bounded by limit.
func (s *Storage) EventsForLink(ctx context.Context, linkID string, from, to time.Time, limit int) ([]Event, error) {
	return s.queryEvents(ctx, "link_id", linkID, from, to, limit)
}

// EventsForOwner returns fact records across all of an owner's links with
// from <= created_at < to, most recent first, bounded by limit.
func (s *Storage) EventsForOwner(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]Event, error) {
	return s.queryEvents(ctx, "owner_id", ownerID, from, to, limit)
}

func (s *Storage) queryEvents(ctx context.Context, column, id string, from, to time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := fmt.Sprintf(`
SELECT %s FROM analytics_events
WHERE %s = ? AND created_at >= ? AND created_at < ?
ORDER BY created_at DESC, id ASC
LIMIT ?`, eventColumns, column)

	rows, err := s.db.QueryContext(ctx, query, id, toMillis(from), toMillis(to), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var e Event
	var kind string
	var isBot int
	var createdAt int64
	err := rows.Scan(
		&e.ID, &e.LinkID, &e.OwnerID, &kind, &e.IP, &e.UserAgent, &e.Referrer,
		&e.Country, &e.CountryCode, &e.Region, &e.City, &e.Latitude, &e.Longitude, &e.Timezone,
		&e.DeviceType, &e.Browser, &e.BrowserVersion, &e.OS, &isBot,
		&e.ReferrerSource, &e.ReferrerMedium, &e.ReferrerDomain,
		&e.UTMSource, &e.UTMMedium, &e.UTMCampaign, &e.UTMTerm, &e.UTMContent,
		&createdAt,
	)
	if err != nil {
		return Event{}, fmt.Errorf("scan event: %w", err)
	}
	e.Kind = EventKind(kind)
	e.IsBot = isBot != 0
	e.CreatedAt = fromMillis(createdAt)
	return e, nil
}

// CountEventsByKind counts an owner's fact records with from <= created_at < to.
func (s *Storage) CountEventsByKind(ctx context.Context, ownerID string, from, to time.Time) (KindCounts, error) {
	var out KindCounts
	rows, err := s.db.QueryContext(ctx, `
SELECT kind, COUNT(*) FROM analytics_events
WHERE owner_id = ? AND created_at >= ? AND created_at < ?
GROUP BY kind
`, ownerID, toMillis(from), toMillis(to))
	if err != nil {
		return out, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return out, err
		}
		switch EventKind(kind) {
		case KindClick:
			out.Clicks = n
		case KindView:
			out.Views = n
		case KindShare:
			out.Shares = n
		}
	}
	return out, rows.Err()
}

// Cleanup deletes fact records older than the retention period. Daily
// rollups are kept. A non-positive retention keeps everything.
func (s *Storage) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("cleanup events: %w", err)
	}
	return res.RowsAffected()
}
