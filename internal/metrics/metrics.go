package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "linkstat"

// Metrics holds all Prometheus metrics for Linkstat.
type Metrics struct {
	// HTTP server metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Tracking metrics
	EventsRecordedTotal *prometheus.CounterVec
	RecordFailuresTotal *prometheus.CounterVec

	// Geo metrics
	GeoLookupsTotal   *prometheus.CounterVec
	GeoLookupDuration prometheus.Histogram
	GeoCacheSize      prometheus.GaugeFunc
	GeoCacheCapacity  prometheus.GaugeFunc
	GeoCacheHits      prometheus.GaugeFunc
	GeoCacheMisses    prometheus.GaugeFunc
	GeoCacheEvicts    prometheus.GaugeFunc
	GeoCacheHitRate   prometheus.GaugeFunc

	// Database metrics
	DBSizeBytes    prometheus.GaugeFunc
	DBEventsTotal  prometheus.GaugeFunc
	DBRollupsTotal prometheus.GaugeFunc
	DBLinksTotal   prometheus.GaugeFunc
}

// DBStats represents database statistics returned by the stats provider function.
type DBStats struct {
	EventsCount  int64
	RollupsCount int64
	LinksCount   int64
}

// GeoCacheStats mirrors the geo cache counters.
type GeoCacheStats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	HitRate  float64
}

// cachedDBStats caches the result of dbStatsFunc for all gauge funcs in a single scrape.
// Since Prometheus GaugeFuncs are called individually, we cache results for 1 second
// to avoid redundant database queries during a single scrape.
type cachedDBStats struct {
	mu          sync.RWMutex
	getStats    func() DBStats
	cachedStats DBStats
	cachedAt    int64 // Unix nanoseconds
}

func newCachedDBStats(getStats func() DBStats) *cachedDBStats {
	return &cachedDBStats{getStats: getStats}
}

func (c *cachedDBStats) get() DBStats {
	now := time.Now().UnixNano()

	c.mu.RLock()
	if c.cachedAt != 0 && now-c.cachedAt <= int64(time.Second) {
		stats := c.cachedStats
		c.mu.RUnlock()
		return stats
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	// Double-check after acquiring write lock
	if c.cachedAt == 0 || now-c.cachedAt > int64(time.Second) {
		c.cachedStats = c.getStats()
		c.cachedAt = now
	}
	return c.cachedStats
}

// New creates all Prometheus metrics. dbStatsFunc results are cached for one
// second; geoCacheFunc may be nil or return nil when no geo cache is in use.
func New(
	dbSizeFunc func() int64,
	dbStatsFunc func() DBStats,
	geoCacheFunc func() *GeoCacheStats,
) *Metrics {
	cache := newCachedDBStats(dbStatsFunc)
	geoStats := func() GeoCacheStats {
		if geoCacheFunc == nil {
			return GeoCacheStats{}
		}
		if s := geoCacheFunc(); s != nil {
			return *s
		}
		return GeoCacheStats{}
	}
	gauge := func(subsystem, name, help string, fn func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      name,
				Help:      help,
			},
			fn,
		)
	}

	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		EventsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "events_recorded_total",
				Help:      "Interactions persisted and rolled up, by kind",
			},
			[]string{"kind"},
		),
		RecordFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tracking",
				Name:      "record_failures_total",
				Help:      "Interactions dropped, by the stage that failed",
			},
			[]string{"stage"},
		),
		GeoLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "geo",
				Name:      "lookups_total",
				Help:      "Geo resolutions by outcome",
			},
			[]string{"outcome"},
		),
		GeoLookupDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "geo",
				Name:      "lookup_duration_seconds",
				Help:      "Time spent resolving a client IP",
				Buckets:   []float64{.0001, .001, .01, .05, .1, .25, .5, 1, 2, 5},
			},
		),
		GeoCacheSize: gauge("geo_cache", "size", "Current number of entries in the geo cache", func() float64 {
			return float64(geoStats().Size)
		}),
		GeoCacheCapacity: gauge("geo_cache", "capacity", "Maximum number of entries in the geo cache", func() float64 {
			return float64(geoStats().Capacity)
		}),
		GeoCacheHits: gauge("geo_cache", "hits_total", "Geo cache hits", func() float64 {
			return float64(geoStats().Hits)
		}),
		GeoCacheMisses: gauge("geo_cache", "misses_total", "Geo cache misses", func() float64 {
			return float64(geoStats().Misses)
		}),
		GeoCacheEvicts: gauge("geo_cache", "evictions_total", "Geo cache evictions due to capacity", func() float64 {
			return float64(geoStats().Evicts)
		}),
		GeoCacheHitRate: gauge("geo_cache", "hit_rate", "Geo cache hit rate (0 to 1)", func() float64 {
			return geoStats().HitRate
		}),
		DBSizeBytes: gauge("db", "size_bytes", "Size of the SQLite database in bytes", func() float64 {
			return float64(dbSizeFunc())
		}),
		DBEventsTotal: gauge("db", "events_total", "Number of rows in the fact record table", func() float64 {
			return float64(cache.get().EventsCount)
		}),
		DBRollupsTotal: gauge("db", "rollups_total", "Number of daily rollup rows", func() float64 {
			return float64(cache.get().RollupsCount)
		}),
		DBLinksTotal: gauge("db", "links_total", "Number of links", func() float64 {
			return float64(cache.get().LinksCount)
		}),
	}
}

// Register registers all metrics with the default Prometheus registry.
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EventsRecordedTotal,
		m.RecordFailuresTotal,
		m.GeoLookupsTotal,
		m.GeoLookupDuration,
		m.GeoCacheSize,
		m.GeoCacheCapacity,
		m.GeoCacheHits,
		m.GeoCacheMisses,
		m.GeoCacheEvicts,
		m.GeoCacheHitRate,
		m.DBSizeBytes,
		m.DBEventsTotal,
		m.DBRollupsTotal,
		m.DBLinksTotal,
	}

	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordEvent counts an interaction that was persisted and rolled up.
func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.EventsRecordedTotal.WithLabelValues(kind).Inc()
}

// RecordFailure counts an interaction dropped at stage.
func (m *Metrics) RecordFailure(stage string) {
	if m == nil {
		return
	}
	m.RecordFailuresTotal.WithLabelValues(stage).Inc()
}

// ObserveGeoLookup records one geo resolution.
func (m *Metrics) ObserveGeoLookup(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GeoLookupsTotal.WithLabelValues(outcome).Inc()
	m.GeoLookupDuration.Observe(duration.Seconds())
}
