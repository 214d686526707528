// Package dashboard composes rollup rows, fact record counts and reduced
// stats into the read models the dashboard renders.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dustin/Linkstat/internal/rollup"
	"github.com/dustin/Linkstat/internal/stats"
	"github.com/dustin/Linkstat/internal/storage"
)

// MaxWindowDays caps dashboard windows and analytics ranges.
const MaxWindowDays = 365

// ErrInvalidRange is returned when an analytics range ends before it starts.
var ErrInvalidRange = errors.New("invalid date range")

// Store is the read side of storage the builder needs.
type Store interface {
	GetLink(ctx context.Context, id string) (storage.Link, error)
	CountLinks(ctx context.Context, ownerID string) (int64, error)
	TopLinks(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]storage.LinkClicks, error)
	CountEventsByKind(ctx context.Context, ownerID string, from, to time.Time) (storage.KindCounts, error)
	EventsForOwner(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]storage.Event, error)
	EventsForLink(ctx context.Context, linkID string, from, to time.Time, limit int) ([]storage.Event, error)
	DailyRowsForOwner(ctx context.Context, ownerID, fromDay, toDay string) ([]storage.DailyRollup, error)
	DailyRowsForLink(ctx context.Context, linkID, fromDay, toDay string) ([]storage.DailyRollup, error)
}

// TimeSeriesPoint is one day of a gap-filled series.
type TimeSeriesPoint struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
	Views  int64  `json:"views"`
}

// DashboardStats is an owner's overview for a window of days ending today.
type DashboardStats struct {
	WindowDays      int                   `json:"windowDays"`
	TotalLinks      int64                 `json:"totalLinks"`
	TotalClicks     int64                 `json:"totalClicks"`
	TotalViews      int64                 `json:"totalViews"`
	GrowthRate      float64               `json:"growthRate"`
	ViewsGrowthRate float64               `json:"viewsGrowthRate"`
	DailyStats      []storage.DailyRollup `json:"dailyStats"`
	TopLinks        []storage.LinkClicks  `json:"topLinks"`
	AdvancedStats   stats.Stats           `json:"advancedStats"`
	Summary         []TimeSeriesPoint     `json:"summary"`
}

// LinkAnalytics is the detail view of one link over a date range.
type LinkAnalytics struct {
	Link    storage.Link          `json:"link"`
	From    string                `json:"from"`
	To      string                `json:"to"`
	Clicks  int64                 `json:"clicks"`
	Views   int64                 `json:"views"`
	Events  []storage.Event       `json:"events"`
	Summary []storage.DailyRollup `json:"summary"`
	Series  []TimeSeriesPoint     `json:"series"`
	Stats   stats.Stats           `json:"stats"`
}

// Options configures a Builder. Zero values take the defaults noted.
type Options struct {
	Location          *time.Location // UTC
	DefaultWindowDays int            // 30
	TopLinksLimit     int            // 5
	StatsEventLimit   int            // 10000
	RecentEventsLimit int            // 100
	QueryTimeout      time.Duration  // no extra bound
}

// Builder assembles dashboard read models.
type Builder struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New creates a Builder.
func New(store Store, opts Options) *Builder {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DefaultWindowDays <= 0 {
		opts.DefaultWindowDays = 30
	}
	if opts.TopLinksLimit <= 0 {
		opts.TopLinksLimit = 5
	}
	if opts.StatsEventLimit <= 0 {
		opts.StatsEventLimit = 10000
	}
	if opts.RecentEventsLimit <= 0 {
		opts.RecentEventsLimit = 100
	}
	return &Builder{store: store, opts: opts, now: time.Now}
}

// BuildDashboard summarises an owner's links over the last window days,
// today included. A non-positive window uses the default. Any failed read
// fails the whole build.
func (b *Builder) BuildDashboard(ctx context.Context, ownerID string, window int) (DashboardStats, error) {
	if window <= 0 {
		window = b.opts.DefaultWindowDays
	}
	window = min(window, MaxWindowDays)

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	loc := b.opts.Location
	today := rollup.StartOfDay(b.now(), loc)
	end := today.AddDate(0, 0, 1)
	from := today.AddDate(0, 0, -(window - 1))
	prevFrom := from.AddDate(0, 0, -window)

	out := DashboardStats{WindowDays: window}
	var current, previous storage.KindCounts
	var events []storage.Event

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.TotalLinks, err = b.store.CountLinks(gctx, ownerID)
		return wrap("count links", err)
	})
	g.Go(func() (err error) {
		current, err = b.store.CountEventsByKind(gctx, ownerID, from, end)
		return wrap("count current window", err)
	})
	g.Go(func() (err error) {
		previous, err = b.store.CountEventsByKind(gctx, ownerID, prevFrom, from)
		return wrap("count previous window", err)
	})
	g.Go(func() (err error) {
		out.DailyStats, err = b.store.DailyRowsForOwner(gctx, ownerID, rollup.DayKey(from, loc), rollup.DayKey(today, loc))
		return wrap("daily rollups", err)
	})
	g.Go(func() (err error) {
		out.TopLinks, err = b.store.TopLinks(gctx, ownerID, from, end, b.opts.TopLinksLimit)
		return wrap("top links", err)
	})
	g.Go(func() (err error) {
		events, err = b.store.EventsForOwner(gctx, ownerID, from, end, b.opts.StatsEventLimit)
		return wrap("events", err)
	})
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}

	out.TotalClicks = current.Clicks
	out.TotalViews = current.Views
	out.GrowthRate = GrowthRate(current.Clicks, previous.Clicks)
	out.ViewsGrowthRate = GrowthRate(current.Views, previous.Views)
	out.Summary = GapFill(out.DailyStats, today, window, loc)
	out.AdvancedStats = stats.Reduce(events, loc)
	if out.DailyStats == nil {
		out.DailyStats = []storage.DailyRollup{}
	}
	if out.TopLinks == nil {
		out.TopLinks = []storage.LinkClicks{}
	}
	return out, nil
}

// GetAnalytics returns one link's analytics for the calendar days from
// through to, both inclusive. A zero to means today; a zero from means the
// default window ending at to. Returns storage.ErrNotFound for unknown links.
func (b *Builder) GetAnalytics(ctx context.Context, linkID string, from, to time.Time) (LinkAnalytics, error) {
	loc := b.opts.Location
	if to.IsZero() {
		to = b.now()
	}
	to = rollup.StartOfDay(to, loc)
	if from.IsZero() {
		from = to.AddDate(0, 0, -(b.opts.DefaultWindowDays - 1))
	}
	from = rollup.StartOfDay(from, loc)
	if to.Before(from) {
		return LinkAnalytics{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, rollup.DayKey(from, loc), rollup.DayKey(to, loc))
	}
	days := daysBetween(from, to) + 1
	if days > MaxWindowDays {
		days = MaxWindowDays
		from = to.AddDate(0, 0, -(days - 1))
	}
	end := to.AddDate(0, 0, 1)

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	link, err := b.store.GetLink(ctx, linkID)
	if err != nil {
		return LinkAnalytics{}, fmt.Errorf("get link %s: %w", linkID, err)
	}

	out := LinkAnalytics{
		Link: link,
		From: rollup.DayKey(from, loc),
		To:   rollup.DayKey(to, loc),
	}
	var events []storage.Event

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		events, err = b.store.EventsForLink(gctx, linkID, from, end, b.opts.StatsEventLimit)
		return wrap("events", err)
	})
	g.Go(func() (err error) {
		out.Summary, err = b.store.DailyRowsForLink(gctx, linkID, out.From, out.To)
		return wrap("daily rollups", err)
	})
	if err := g.Wait(); err != nil {
		return LinkAnalytics{}, err
	}

	for _, r := range out.Summary {
		out.Clicks += r.Clicks
		out.Views += r.Views
	}
	out.Events = events[:min(len(events), b.opts.RecentEventsLimit)]
	if out.Events == nil {
		out.Events = []storage.Event{}
	}
	if out.Summary == nil {
		out.Summary = []storage.DailyRollup{}
	}
	out.Series = GapFill(out.Summary, to, days, loc)
	out.Stats = stats.Reduce(events, loc)
	return out, nil
}

// GrowthRate is the percentage change from previous to current, rounded to
// one decimal. It is 0 when previous is 0.
func GrowthRate(current, previous int64) float64 {
	if previous == 0 {
		return 0
	}
	return stats.Round1(float64(current-previous) / float64(previous) * 100)
}

// GapFill returns exactly days points, oldest first, for the calendar days
// ending with end's day in loc. Rows are summed per day; days without a row
// are zero.
func GapFill(rows []storage.DailyRollup, end time.Time, days int, loc *time.Location) []TimeSeriesPoint {
	if days <= 0 {
		return []TimeSeriesPoint{}
	}
	byDay := make(map[string]TimeSeriesPoint, len(rows))
	for _, r := range rows {
		p := byDay[r.Day]
		p.Clicks += r.Clicks
		p.Views += r.Views
		byDay[r.Day] = p
	}

	last := rollup.StartOfDay(end, loc)
	out := make([]TimeSeriesPoint, days)
	for i := range out {
		day := rollup.DayKey(last.AddDate(0, 0, i-(days-1)), loc)
		p := byDay[day]
		p.Date = day
		out[i] = p
	}
	return out
}

func (b *Builder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opts.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.opts.QueryTimeout)
}

func daysBetween(from, to time.Time) int {
	y1, m1, d1 := from.Date()
	y2, m2, d2 := to.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	z := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(z.Sub(a).Hours() / 24)
}

func wrap(what string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
