// Package rollup maintains the per-link, per-day click and view counters.
package rollup

import (
	"context"
	"time"

	"github.com/dustin/Linkstat/internal/storage"
)

// DayLayout is the format of rollup day keys.
const DayLayout = "2006-01-02"

// Store is the storage the aggregator writes through.
type Store interface {
	IncrementDaily(ctx context.Context, linkID, ownerID, day string, clicks, views int64) error
}

// Aggregator turns recorded interactions into daily counter increments.
type Aggregator struct {
	store Store
	loc   *time.Location
}

// New returns an Aggregator whose day boundaries fall at midnight in loc.
// A nil loc means UTC.
func New(store Store, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{store: store, loc: loc}
}

// Location returns the timezone used for day boundaries.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

// Increment adds one interaction of the given kind to the link's row for the
// day containing at. Shares are not counted.
func (a *Aggregator) Increment(ctx context.Context, linkID, ownerID string, kind storage.EventKind, at time.Time) error {
	clicks, views := Deltas(kind)
	if clicks == 0 && views == 0 {
		return nil
	}
	return a.store.IncrementDaily(ctx, linkID, ownerID, DayKey(at, a.loc), clicks, views)
}

// Deltas maps an interaction kind to its (clicks, views) increment.
func Deltas(kind storage.EventKind) (clicks, views int64) {
	switch kind {
	case storage.KindClick:
		return 1, 0
	case storage.KindView:
		return 0, 1
	}
	return 0, 0
}

// DayKey returns the calendar day of t in loc as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
