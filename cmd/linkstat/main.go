package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/Linkstat/internal/config"
	"github.com/dustin/Linkstat/internal/dashboard"
	"github.com/dustin/Linkstat/internal/geo"
	"github.com/dustin/Linkstat/internal/logging"
	"github.com/dustin/Linkstat/internal/metrics"
	"github.com/dustin/Linkstat/internal/rollup"
	"github.com/dustin/Linkstat/internal/server"
	"github.com/dustin/Linkstat/internal/sse"
	"github.com/dustin/Linkstat/internal/storage"
	"github.com/dustin/Linkstat/internal/tracking"
	"github.com/dustin/Linkstat/internal/version"
)

const retentionInterval = 12 * time.Hour

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.Info("starting linkstat", "version", version.Version, "commit", version.GitCommit)

	if err := run(cfg); err != nil {
		slog.Error("linkstat stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func run(cfg config.Config) error {
	store, err := storage.NewWithOptions(cfg.DBPath, storage.Options{
		MaxConnections: cfg.DBMaxConnections,
		QueryTimeout:   cfg.DBQueryTimeout,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	provider, closeGeo := geoProvider(cfg)
	defer closeGeo()
	cache := geo.NewCache(geo.CacheConfig{Capacity: cfg.GeoCacheSize, TTL: cfg.GeoCacheTTL})

	m := metrics.New(
		func() int64 {
			size, err := store.DBFileSize()
			if err != nil {
				return 0
			}
			return size
		},
		func() metrics.DBStats {
			st, err := store.GetDatabaseStats(context.Background())
			if err != nil {
				slog.Debug("failed to read database stats", "error", err)
				return metrics.DBStats{}
			}
			return metrics.DBStats{EventsCount: st.EventsCount, RollupsCount: st.RollupsCount, LinksCount: st.LinksCount}
		},
		func() *metrics.GeoCacheStats {
			st := cache.Stats()
			return &metrics.GeoCacheStats{
				Size:     st.Size,
				Capacity: st.Capacity,
				Hits:     st.Hits,
				Misses:   st.Misses,
				Evicts:   st.Evicts,
				HitRate:  st.HitRate,
			}
		},
	)
	if err := m.Register(); err != nil {
		return err
	}

	loc := cfg.Location()
	hub := sse.NewHub()
	resolver := geo.NewResolver(provider, cache, geo.Options{
		Timeout:    cfg.GeoTimeout,
		FailureTTL: cfg.GeoFailureTTL,
		Observer:   m,
	})
	recorder := tracking.New(resolver, store, rollup.New(store, loc), tracking.Options{
		Timeout:   cfg.RecordTimeout,
		Observer:  m,
		Publisher: hub,
	})
	builder := dashboard.New(store, dashboard.Options{
		Location:          loc,
		DefaultWindowDays: cfg.DashboardWindowDays,
		TopLinksLimit:     cfg.TopLinksLimit,
		StatsEventLimit:   cfg.StatsEventLimit,
		RecentEventsLimit: cfg.RecentEventsLimit,
		QueryTimeout:      cfg.DBQueryTimeout,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.DataRetentionDays > 0 {
		go runRetention(ctx, store, cfg.DataRetentionDays)
	}

	handler := server.New(store, hub, recorder, builder, m, cfg)
	defer handler.Close()
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "error", err)
	}
	// In-flight recordings hold their own deadline; let them land before
	// the database closes.
	recorder.Wait()
	return nil
}

// geoProvider builds the lookup chain: the local MaxMind database first,
// then the HTTP service. Either may be absent.
func geoProvider(cfg config.Config) (geo.Provider, func()) {
	var chain geo.Chain
	closeFn := func() {}

	if cfg.MaxMindDBPath != "" {
		mm, err := geo.OpenMaxMind(cfg.MaxMindDBPath)
		if err != nil {
			slog.Warn("maxmind geo disabled", "path", cfg.MaxMindDBPath, "error", err)
		} else {
			chain = append(chain, mm)
			closeFn = func() {
				if err := mm.Close(); err != nil {
					slog.Warn("failed to close maxmind db", "error", err)
				}
			}
		}
	}
	if cfg.GeoAPIURL != "" {
		chain = append(chain, geo.NewHTTPProvider(cfg.GeoAPIURL, &http.Client{Timeout: cfg.GeoTimeout}))
	}

	if len(chain) == 0 {
		slog.Info("no geo provider configured, public addresses resolve to Unknown")
		return nil, closeFn
	}
	return chain, closeFn
}

func runRetention(ctx context.Context, store *storage.Storage, days int) {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Cleanup(ctx, days)
			if err != nil {
				slog.Warn("retention cleanup failed", "error", err)
				continue
			}
			slog.Info("retention cleanup", "deleted_events", n, "retention_days", days)
		}
	}
}
