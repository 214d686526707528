package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// IncrementDaily adds clicks and views to the (linkID, day) rollup row,
// creating it on first use. It is a single atomic upsert.
func (s *Storage) IncrementDaily(ctx context.Context, linkID, ownerID, day string, clicks, views int64) error {
	if linkID == "" || day == "" {
		return errors.New("link id and day are required")
	}
	if clicks < 0 || views < 0 {
		return errors.New("rollup counters only move forward")
	}
	if _, err := s.stmtIncrementDaily.ExecContext(ctx, linkID, day, ownerID, clicks, views); err != nil {
		return fmt.Errorf("increment daily rollup: %w", err)
	}
	return nil
}

// DailyRowsForLink returns a link's rollup rows with fromDay <= day <= toDay,
// oldest first. Days are YYYY-MM-DD.
func (s *Storage) DailyRowsForLink(ctx context.Context, linkID, fromDay, toDay string) ([]DailyRollup, error) {
	return s.dailyRows(ctx, "link_id", linkID, fromDay, toDay)
}

// DailyRowsForOwner returns rollup rows for all of an owner's links with
// fromDay <= day <= toDay, oldest first.
func (s *Storage) DailyRowsForOwner(ctx context.Context, ownerID, fromDay, toDay string) ([]DailyRollup, error) {
	return s.dailyRows(ctx, "owner_id", ownerID, fromDay, toDay)
}

func (s *Storage) dailyRows(ctx context.Context, column, id, fromDay, toDay string) ([]DailyRollup, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
SELECT link_id, day, owner_id, clicks, views FROM analytics_summary
WHERE %s = ? AND day >= ? AND day <= ?
ORDER BY day ASC, link_id ASC
`, column), id, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("query daily rollups: %w", err)
	}
	defer rows.Close()

	var out []DailyRollup
	for rows.Next() {
		var r DailyRollup
		if err := rows.Scan(&r.LinkID, &r.Day, &r.OwnerID, &r.Clicks, &r.Views); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetDailyRollup returns the single rollup row for (linkID, day).
func (s *Storage) GetDailyRollup(ctx context.Context, linkID, day string) (DailyRollup, error) {
	var r DailyRollup
	err := s.db.QueryRowContext(ctx, `
SELECT link_id, day, owner_id, clicks, views FROM analytics_summary WHERE link_id = ? AND day = ?
`, linkID, day).Scan(&r.LinkID, &r.Day, &r.OwnerID, &r.Clicks, &r.Views)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, ErrNotFound
		}
		return r, err
	}
	return r, nil
}
