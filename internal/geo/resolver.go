package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Lookup outcomes reported to the Observer.
const (
	OutcomeLocal    = "local"
	OutcomeInvalid  = "invalid"
	OutcomeDisabled = "disabled"
	OutcomeCacheHit = "cache_hit"
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeTimeout  = "timeout"
)

// Observer receives one call per Resolve.
type Observer interface {
	ObserveGeoLookup(outcome string, duration time.Duration)
}

// Options configures a Resolver.
type Options struct {
	// Timeout bounds each provider call. Default: 2s
	Timeout time.Duration
	// FailureTTL is how long an Unknown result is cached after a failed
	// lookup. Default: 5m
	FailureTTL time.Duration
	Observer   Observer
}

// Resolver turns client IPs into locations with a cache in front of the
// provider. Concurrent lookups for the same IP share one provider call.
type Resolver struct {
	provider   Provider
	cache      *Cache
	group      singleflight.Group
	timeout    time.Duration
	failureTTL time.Duration
	observer   Observer
}

// NewResolver creates a Resolver. A nil provider resolves every public
// address to Unknown; a nil cache disables caching.
func NewResolver(provider Provider, cache *Cache, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = 5 * time.Minute
	}
	return &Resolver{
		provider:   provider,
		cache:      cache,
		timeout:    opts.Timeout,
		failureTTL: opts.FailureTTL,
		observer:   opts.Observer,
	}
}

// Resolve returns the location of ip. It never fails and never waits on the
// provider for longer than the configured timeout.
func (r *Resolver) Resolve(ctx context.Context, ip string) Location {
	start := time.Now()
	loc, outcome := r.resolve(ctx, ip)
	if r.observer != nil {
		r.observer.ObserveGeoLookup(outcome, time.Since(start))
	}
	return loc
}

func (r *Resolver) resolve(ctx context.Context, ip string) (Location, string) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return Unknown, OutcomeInvalid
	}
	addr = addr.Unmap().WithZone("")
	if isLocal(addr) {
		return Local, OutcomeLocal
	}
	if r.provider == nil {
		return Unknown, OutcomeDisabled
	}

	key := addr.String()
	if r.cache != nil {
		if loc, ok := r.cache.Get(key); ok {
			return loc, OutcomeCacheHit
		}
	}

	ch := r.group.DoChan(key, func() (any, error) {
		return r.lookup(ctx, key)
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			slog.Debug("geo lookup failed", "ip", key, "error", res.Err)
			if errors.Is(res.Err, errLookupTimeout) {
				return Unknown, OutcomeTimeout
			}
			return Unknown, OutcomeError
		}
		return res.Val.(Location), OutcomeSuccess
	case <-timer.C:
		// The provider ignored its deadline; the shared call keeps running
		// and will still populate the cache.
		return Unknown, OutcomeTimeout
	case <-ctx.Done():
		return Unknown, OutcomeTimeout
	}
}

// lookup runs one provider call under the hard timeout and caches the
// outcome. It runs detached from the caller's cancellation so one cancelled
// caller cannot fail the lookup for everyone sharing it.
func (r *Resolver) lookup(ctx context.Context, ip string) (loc Location, err error) {
	// An earlier shared call may have filled the entry since resolve missed.
	if r.cache != nil {
		if cached, ok := r.cache.peek(ip); ok {
			return cached, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("geo provider panic: %v", rec)
		}
		if r.cache == nil {
			return
		}
		ttl := time.Duration(0)
		if err != nil {
			loc, ttl = Unknown, r.failureTTL
		}
		r.cache.Set(ip, loc, ttl)
	}()

	loc, err = r.provider.Lookup(lookupCtx, ip)
	if err != nil && lookupCtx.Err() != nil {
		err = fmt.Errorf("%w: %w", errLookupTimeout, err)
	}
	return loc, err
}

var errLookupTimeout = errors.New("geo lookup timed out")

func isLocal(addr netip.Addr) bool {
	return addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}
