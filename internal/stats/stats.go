// Package stats reduces fact records into ranked dimension tallies and
// time-of-day histograms.
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/dustin/Linkstat/internal/storage"
)

// TopN bounds every tally except devices.
const TopN = 5

// Tally is one ranked (value, count) entry. Percent is the share of the
// reduced total, rounded to one decimal.
type Tally struct {
	Value   string  `json:"value"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// Stats is the reduction of a set of fact records.
type Stats struct {
	// HasRealData is false when the numbers are the illustrative placeholder.
	HasRealData      bool      `json:"hasRealData"`
	Total            int64     `json:"total"`
	Countries        []Tally   `json:"countries"`
	Devices          []Tally   `json:"devices"`
	Browsers         []Tally   `json:"browsers"`
	OperatingSystems []Tally   `json:"operatingSystems"`
	Referrers        []Tally   `json:"referrers"`
	Campaigns        []Tally   `json:"campaigns"`
	Hourly           [24]int64 `json:"hourly"`
	Weekdays         [7]int64  `json:"weekdays"` // Sunday = 0
	PeakHour         int       `json:"peakHour"`
	PeakWeekday      int       `json:"peakWeekday"`
}

// PeakWeekdayName returns the English name of the peak weekday.
func (s Stats) PeakWeekdayName() string {
	return time.Weekday(s.PeakWeekday).String()
}

// Reduce groups events by dimension and time of day in loc (UTC if nil).
// An empty input yields Placeholder().
func Reduce(events []storage.Event, loc *time.Location) Stats {
	if len(events) == 0 {
		return Placeholder()
	}
	if loc == nil {
		loc = time.UTC
	}

	countries := map[string]int64{}
	devices := map[string]int64{}
	browsers := map[string]int64{}
	systems := map[string]int64{}
	referrers := map[string]int64{}
	campaigns := map[string]int64{}

	out := Stats{HasRealData: true, Total: int64(len(events))}
	for _, e := range events {
		countries[orDefault(e.Country, "Unknown")]++
		devices[orDefault(e.DeviceType, "Unknown")]++
		browsers[orDefault(e.Browser, "Unknown")]++
		systems[orDefault(e.OS, "Unknown")]++
		referrers[orDefault(e.ReferrerSource, "Direct")]++
		if e.UTMCampaign != "" {
			campaigns[e.UTMCampaign]++
		}

		t := e.CreatedAt.In(loc)
		out.Hourly[t.Hour()]++
		out.Weekdays[t.Weekday()]++
	}

	out.Countries = rank(countries, out.Total, TopN)
	out.Devices = rank(devices, out.Total, 0)
	out.Browsers = rank(browsers, out.Total, TopN)
	out.OperatingSystems = rank(systems, out.Total, TopN)
	out.Referrers = rank(referrers, out.Total, TopN)
	out.Campaigns = rank(campaigns, out.Total, TopN)
	out.PeakHour = argmax(out.Hourly[:])
	out.PeakWeekday = argmax(out.Weekdays[:])
	return out
}

// rank sorts counts descending, ties by value ascending, and keeps the first
// limit entries. A limit of 0 keeps everything.
func rank(counts map[string]int64, total int64, limit int) []Tally {
	out := make([]Tally, 0, len(counts))
	for v, c := range counts {
		out = append(out, Tally{Value: v, Count: c, Percent: Percent(c, total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// argmax returns the index of the largest bucket; ties go to the lowest index.
func argmax(buckets []int64) int {
	best := 0
	for i, v := range buckets {
		if v > buckets[best] {
			best = i
		}
	}
	return best
}

// Percent returns part as a percentage of total, rounded to one decimal.
func Percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return Round1(float64(part) / float64(total) * 100)
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
