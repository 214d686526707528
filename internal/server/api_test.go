package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dustin/Linkstat/internal/dashboard"
	"github.com/dustin/Linkstat/internal/storage"
	"github.com/dustin/Linkstat/internal/tracking"
)

func postEvent(env *testEnv, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	return w
}

func allEvents(t *testing.T, env *testEnv, linkID string) []storage.Event {
	t.Helper()
	events, err := env.store.EventsForLink(t.Context(), linkID, time.Unix(0, 0), time.Now().Add(time.Hour), 100)
	if err != nil {
		t.Fatalf("EventsForLink() error = %v", err)
	}
	return events
}

func rollupTotals(t *testing.T, env *testEnv, linkID string) (clicks, views int64) {
	t.Helper()
	rows, err := env.store.DailyRowsForLink(t.Context(), linkID, "2000-01-01", "2999-12-31")
	if err != nil {
		t.Fatalf("DailyRowsForLink() error = %v", err)
	}
	for _, r := range rows {
		clicks += r.Clicks
		views += r.Views
	}
	return clicks, views
}

func TestTrackEvent_Accepted(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	w := postEvent(env, `{"link_id":"link-1","kind":"click","url":"https://bio.example/?utm_source=newsletter&utm_campaign=spring"}`, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		r.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1")
		r.Header.Set("Referer", "https://www.instagram.com/someone")
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	env.recorder.Wait()

	events := allEvents(t, env, "link-1")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	checks := []struct {
		field, got, want string
	}{
		{"OwnerID", ev.OwnerID, "owner-1"},
		{"Kind", string(ev.Kind), "click"},
		{"IP", ev.IP, "203.0.113.9"},
		{"Country", ev.Country, "Unknown"},
		{"DeviceType", ev.DeviceType, "mobile"},
		{"Browser", ev.Browser, "Safari"},
		{"OS", ev.OS, "iOS"},
		{"ReferrerSource", ev.ReferrerSource, "Instagram"},
		{"ReferrerMedium", ev.ReferrerMedium, "social"},
		{"UTMSource", ev.UTMSource, "newsletter"},
		{"UTMCampaign", ev.UTMCampaign, "spring"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	if clicks, views := rollupTotals(t, env, "link-1"); clicks != 1 || views != 0 {
		t.Errorf("rollup = %d clicks %d views, want 1/0", clicks, views)
	}
	if got := testutil.ToFloat64(env.metrics.EventsRecordedTotal.WithLabelValues("click")); got != 1 {
		t.Errorf("events recorded metric = %v, want 1", got)
	}
}

func TestTrackEvent_UntrustedProxyHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.TrustProxyHeaders = false
	env := setupTestServer(t, cfg)
	env.createLink(t, "link-1", "owner-1")

	w := postEvent(env, `{"link_id":"link-1","kind":"view"}`, func(r *http.Request) {
		r.RemoteAddr = "192.168.1.5:40000"
		r.Header.Set("X-Forwarded-For", "203.0.113.9")
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	env.recorder.Wait()

	events := allEvents(t, env, "link-1")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].IP != "192.168.1.5" {
		t.Errorf("IP = %q, want the connection address", events[0].IP)
	}
	if events[0].Country != "Local" {
		t.Errorf("Country = %q, want Local for a private address", events[0].Country)
	}
	if events[0].ReferrerSource != "Direct" {
		t.Errorf("ReferrerSource = %q, want Direct without a Referer", events[0].ReferrerSource)
	}
}

func TestTrackEvent_URLFallsBackToRequestURL(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	req := httptest.NewRequest(http.MethodPost, "/api/events?utm_source=qr&utm_medium=print", strings.NewReader(`{"link_id":"link-1","kind":"click"}`))
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	env.recorder.Wait()

	events := allEvents(t, env, "link-1")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].UTMSource != "qr" || events[0].UTMMedium != "print" {
		t.Errorf("campaign = %q/%q, want qr/print", events[0].UTMSource, events[0].UTMMedium)
	}
}

func TestTrackEvent_SharesSkipRollup(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	if w := postEvent(env, `{"link_id":"link-1","kind":"share"}`, nil); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	env.recorder.Wait()

	if n := len(allEvents(t, env, "link-1")); n != 1 {
		t.Errorf("got %d events, want 1", n)
	}
	if clicks, views := rollupTotals(t, env, "link-1"); clicks != 0 || views != 0 {
		t.Errorf("rollup = %d/%d, want nothing for a share", clicks, views)
	}
}

func TestTrackEvent_Rejected(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{"link_id":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"unknown kind", `{"link_id":"link-1","kind":"hover"}`, http.StatusBadRequest},
		{"missing kind", `{"link_id":"link-1"}`, http.StatusBadRequest},
		{"missing link", `{"kind":"click"}`, http.StatusBadRequest},
		{"unknown link", `{"link_id":"nope","kind":"click"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postEvent(env, tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var resp map[string]string
			decodeBody(t, w, &resp)
			if resp["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}

	env.recorder.Wait()
	if n := len(allEvents(t, env, "link-1")); n != 0 {
		t.Errorf("rejected requests stored %d events", n)
	}
}

func TestTrackEvent_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	env := setupTestServer(t, cfg)
	env.createLink(t, "link-1", "owner-1")

	from := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip) }
	}
	body := `{"link_id":"link-1","kind":"click"}`

	for i := range 2 {
		if w := postEvent(env, body, from("203.0.113.1")); w.Code != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want %d", i+1, w.Code, http.StatusAccepted)
		}
	}
	if w := postEvent(env, body, from("203.0.113.1")); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := postEvent(env, body, from("203.0.113.2")); w.Code != http.StatusAccepted {
		t.Errorf("other client: status = %d, want %d", w.Code, http.StatusAccepted)
	}

	env.recorder.Wait()
	if clicks, _ := rollupTotals(t, env, "link-1"); clicks != 3 {
		t.Errorf("clicks = %d, want 3", clicks)
	}
}

func recordSync(t *testing.T, env *testEnv, linkID, owner string, kind storage.EventKind, n int) {
	t.Helper()
	for range n {
		env.recorder.Record(context.Background(), tracking.Interaction{
			LinkID: linkID, OwnerID: owner, Kind: kind, IP: "10.0.0.1", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/119.0",
		})
	}
}

func getJSON(t *testing.T, env *testEnv, path string, v any) int {
	t.Helper()
	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if w.Code == http.StatusOK && v != nil {
		decodeBody(t, w, v)
	}
	return w.Code
}

func TestLinkAnalytics_DefaultWindow(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")
	recordSync(t, env, "link-1", "owner-1", storage.KindClick, 2)
	recordSync(t, env, "link-1", "owner-1", storage.KindView, 1)

	var got dashboard.LinkAnalytics
	if code := getJSON(t, env, "/api/links/link-1/analytics", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if got.Link.OwnerID != "owner-1" {
		t.Errorf("Link.OwnerID = %q, want owner-1", got.Link.OwnerID)
	}
	if got.Clicks != 2 || got.Views != 1 {
		t.Errorf("totals = %d/%d, want 2/1", got.Clicks, got.Views)
	}
	if len(got.Series) != 30 {
		t.Errorf("series has %d points, want 30", len(got.Series))
	}
	if len(got.Events) != 3 {
		t.Errorf("got %d events, want 3", len(got.Events))
	}
	if !got.Stats.HasRealData || got.Stats.Total != 3 {
		t.Errorf("stats = real %v total %d, want real data over 3 records", got.Stats.HasRealData, got.Stats.Total)
	}
}

func TestLinkAnalytics_ExplicitRange(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")
	if err := env.store.IncrementDaily(t.Context(), "link-1", "owner-1", "2024-01-03", 4, 2); err != nil {
		t.Fatalf("IncrementDaily() error = %v", err)
	}

	var got dashboard.LinkAnalytics
	if code := getJSON(t, env, "/api/links/link-1/analytics?from=2024-01-01&to=2024-01-07", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if got.From != "2024-01-01" || got.To != "2024-01-07" {
		t.Errorf("range = %s..%s", got.From, got.To)
	}
	if len(got.Series) != 7 {
		t.Fatalf("series has %d points, want 7", len(got.Series))
	}
	if p := got.Series[2]; p.Date != "2024-01-03" || p.Clicks != 4 || p.Views != 2 {
		t.Errorf("series[2] = %+v", p)
	}
	if got.Stats.HasRealData {
		t.Error("no fact records in range, want placeholder stats")
	}
}

func TestLinkAnalytics_RangeIsCapped(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	var got dashboard.LinkAnalytics
	if code := getJSON(t, env, "/api/links/link-1/analytics?from=2020-01-01&to=2024-01-01", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if len(got.Series) != dashboard.MaxWindowDays {
		t.Errorf("series has %d points, want %d", len(got.Series), dashboard.MaxWindowDays)
	}
}

func TestLinkAnalytics_Errors(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-1", "owner-1")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown link", "/api/links/nope/analytics", http.StatusNotFound},
		{"bad from", "/api/links/link-1/analytics?from=yesterday", http.StatusBadRequest},
		{"bad to", "/api/links/link-1/analytics?to=2024-13-01", http.StatusBadRequest},
		{"reversed range", "/api/links/link-1/analytics?from=2024-02-01&to=2024-01-01", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := getJSON(t, env, tt.path, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestDashboard(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.createLink(t, "link-a", "owner-1")
	env.createLink(t, "link-b", "owner-1")
	env.createLink(t, "link-c", "owner-2")
	recordSync(t, env, "link-a", "owner-1", storage.KindClick, 1)
	recordSync(t, env, "link-b", "owner-1", storage.KindClick, 3)
	recordSync(t, env, "link-b", "owner-1", storage.KindView, 2)
	recordSync(t, env, "link-c", "owner-2", storage.KindClick, 5)

	var got dashboard.DashboardStats
	if code := getJSON(t, env, "/api/owners/owner-1/dashboard?days=7", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if got.WindowDays != 7 || len(got.Summary) != 7 {
		t.Errorf("window = %d days with %d points, want 7", got.WindowDays, len(got.Summary))
	}
	if got.TotalLinks != 2 || got.TotalClicks != 4 || got.TotalViews != 2 {
		t.Errorf("totals = links %d clicks %d views %d, want 2/4/2", got.TotalLinks, got.TotalClicks, got.TotalViews)
	}
	if len(got.TopLinks) != 2 || got.TopLinks[0].LinkID != "link-b" {
		t.Errorf("TopLinks = %+v, want link-b first", got.TopLinks)
	}
	if last := got.Summary[len(got.Summary)-1]; last.Clicks != 4 || last.Views != 2 {
		t.Errorf("today = %+v, want 4 clicks 2 views", last)
	}
}

func TestDashboard_Window(t *testing.T) {
	env := setupTestServer(t, testConfig())

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantDays   int
	}{
		{"default", "", http.StatusOK, 30},
		{"zero uses default", "?days=0", http.StatusOK, 30},
		{"capped", "?days=1000", http.StatusOK, dashboard.MaxWindowDays},
		{"not a number", "?days=week", http.StatusBadRequest, 0},
		{"negative", "?days=-3", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dashboard.DashboardStats
			code := getJSON(t, env, "/api/owners/owner-1/dashboard"+tt.query, &got)
			if code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", code, tt.wantStatus)
			}
			if code == http.StatusOK && got.WindowDays != tt.wantDays {
				t.Errorf("WindowDays = %d, want %d", got.WindowDays, tt.wantDays)
			}
		})
	}
}

func TestDashboard_UnknownOwner(t *testing.T) {
	env := setupTestServer(t, testConfig())

	var got dashboard.DashboardStats
	if code := getJSON(t, env, "/api/owners/nobody/dashboard", &got); code != http.StatusOK {
		t.Fatalf("status = %d, want %d", code, http.StatusOK)
	}
	if got.TotalLinks != 0 || got.TotalClicks != 0 {
		t.Errorf("totals = %d/%d, want zero", got.TotalLinks, got.TotalClicks)
	}
	if got.AdvancedStats.HasRealData {
		t.Error("want placeholder stats for an owner without records")
	}
}

func TestDashboard_StoreFailure(t *testing.T) {
	env := setupTestServer(t, testConfig())
	env.store.Close()

	w := httptest.NewRecorder()
	env.srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/owners/owner-1/dashboard", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
