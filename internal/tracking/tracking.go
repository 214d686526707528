// Package tracking records link interactions. Recording is best effort:
// failures are logged and counted, never returned to the caller.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dustin/Linkstat/internal/geo"
	"github.com/dustin/Linkstat/internal/source"
	"github.com/dustin/Linkstat/internal/storage"
	"github.com/dustin/Linkstat/internal/useragent"
)

// ErrInvalidInteraction is returned by Interaction.Validate.
var ErrInvalidInteraction = errors.New("invalid interaction")

// Failure stages reported to the Observer.
const (
	StageValidate = "validate"
	StagePersist  = "persist"
	StageRollup   = "rollup"
	StagePanic    = "panic"
)

// Interaction is one raw click, view or share against a published link,
// with the request signals it arrived with.
type Interaction struct {
	LinkID    string
	OwnerID   string
	Kind      storage.EventKind
	IP        string
	UserAgent string
	Referrer  string
	URL       string
}

// Validate checks the fields recording cannot do without.
func (in Interaction) Validate() error {
	switch {
	case in.LinkID == "":
		return fmt.Errorf("%w: missing link id", ErrInvalidInteraction)
	case in.OwnerID == "":
		return fmt.Errorf("%w: missing owner id", ErrInvalidInteraction)
	case !in.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInteraction, in.Kind)
	}
	return nil
}

// Resolver maps a client IP to a location. It must not fail.
type Resolver interface {
	Resolve(ctx context.Context, ip string) geo.Location
}

// EventStore persists fact records.
type EventStore interface {
	InsertEvent(ctx context.Context, e storage.Event) error
}

// Counter bumps the daily rollup for a recorded interaction.
type Counter interface {
	Increment(ctx context.Context, linkID, ownerID string, kind storage.EventKind, at time.Time) error
}

// Observer is notified of recorded interactions and swallowed failures.
type Observer interface {
	RecordEvent(kind string)
	RecordFailure(stage string)
}

// Publisher receives every fact record once it has been stored.
type Publisher interface {
	Publish(e storage.Event)
}

// Options configures a Recorder.
type Options struct {
	// Timeout bounds one RecordAsync call. Default: 5s
	Timeout   time.Duration
	Observer  Observer
	Publisher Publisher
}

// Recorder derives metadata for interactions, persists them as fact records
// and feeds the daily rollup.
type Recorder struct {
	resolver  Resolver
	events    EventStore
	counter   Counter
	timeout   time.Duration
	observer  Observer
	publisher Publisher
	now       func() time.Time

	wg sync.WaitGroup
}

// New creates a Recorder.
func New(resolver Resolver, events EventStore, counter Counter, opts Options) *Recorder {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Recorder{
		resolver:  resolver,
		events:    events,
		counter:   counter,
		timeout:   opts.Timeout,
		observer:  opts.Observer,
		publisher: opts.Publisher,
		now:       time.Now,
	}
}

// Record runs the whole pipeline for one interaction. It never panics and
// has no failure result: an interaction that cannot be stored is dropped
// with a log line.
func (r *Recorder) Record(ctx context.Context, in Interaction) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("recording interaction panicked", "link_id", in.LinkID, "kind", in.Kind, "panic", rec)
			r.fail(StagePanic)
		}
	}()

	if err := in.Validate(); err != nil {
		slog.Warn("dropping interaction", "link_id", in.LinkID, "error", err)
		r.fail(StageValidate)
		return
	}

	ev := r.buildEvent(ctx, in)
	if err := r.events.InsertEvent(ctx, ev); err != nil {
		slog.Warn("failed to persist event", "link_id", in.LinkID, "event_id", ev.ID, "error", err)
		r.fail(StagePersist)
		return
	}
	if err := r.counter.Increment(ctx, in.LinkID, in.OwnerID, in.Kind, ev.CreatedAt); err != nil {
		slog.Warn("failed to update daily rollup", "link_id", in.LinkID, "event_id", ev.ID, "error", err)
		r.fail(StageRollup)
		return
	}

	if r.observer != nil {
		r.observer.RecordEvent(string(in.Kind))
	}
	if r.publisher != nil {
		r.publisher.Publish(ev)
	}
	slog.Debug("recorded interaction", "link_id", in.LinkID, "kind", in.Kind, "event_id", ev.ID)
}

// RecordAsync records in the background so the caller's request is not
// held up. The work outlives ctx's cancellation but is bounded by the
// recorder's timeout.
func (r *Recorder) RecordAsync(ctx context.Context, in Interaction) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.Record(ctx, in)
	}()
}

// Wait blocks until all RecordAsync work has finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) buildEvent(ctx context.Context, in Interaction) storage.Event {
	device := useragent.ClassifyDevice(in.UserAgent)
	ref := source.ClassifyReferrer(in.Referrer)
	campaign := source.ExtractCampaignTags(in.URL)
	loc := r.resolver.Resolve(ctx, in.IP)

	return storage.Event{
		ID:             uuid.NewString(),
		LinkID:         in.LinkID,
		OwnerID:        in.OwnerID,
		Kind:           in.Kind,
		IP:             in.IP,
		UserAgent:      in.UserAgent,
		Referrer:       in.Referrer,
		Country:        loc.Country,
		CountryCode:    loc.CountryCode,
		Region:         loc.Region,
		City:           loc.City,
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		Timezone:       loc.Timezone,
		DeviceType:     device.DeviceType,
		Browser:        device.Browser,
		BrowserVersion: device.BrowserVersion,
		OS:             device.OS,
		IsBot:          device.IsBot,
		ReferrerSource: ref.Source,
		ReferrerMedium: ref.Medium,
		ReferrerDomain: ref.Domain,
		UTMSource:      campaign.Source,
		UTMMedium:      campaign.Medium,
		UTMCampaign:    campaign.Name,
		UTMTerm:        campaign.Term,
		UTMContent:     campaign.Content,
		CreatedAt:      r.now(),
	}
}

func (r *Recorder) fail(stage string) {
	if r.observer != nil {
		r.observer.RecordFailure(stage)
	}
}
