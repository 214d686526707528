package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// EventKind is the type of tracked interaction.
type EventKind string

const (
	KindClick EventKind = "click"
	KindView  EventKind = "view"
	KindShare EventKind = "share"
)

// Valid reports whether k is one of the known interaction kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindClick, KindView, KindShare:
		return true
	}
	return false
}

// Event is an immutable fact record of one tracked interaction plus the
// metadata derived from its request signals.
type Event struct {
	ID             string    `json:"id"`
	LinkID         string    `json:"link_id"`
	OwnerID        string    `json:"owner_id"`
	Kind           EventKind `json:"kind"`
	IP             string    `json:"ip"`
	UserAgent      string    `json:"user_agent"`
	Referrer       string    `json:"referrer"`
	Country        string    `json:"country"`
	CountryCode    string    `json:"country_code"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	Timezone       string    `json:"timezone"`
	DeviceType     string    `json:"device_type"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browser_version"`
	OS             string    `json:"os"`
	IsBot          bool      `json:"is_bot"`
	ReferrerSource string    `json:"referrer_source"`
	ReferrerMedium string    `json:"referrer_medium"`
	ReferrerDomain string    `json:"referrer_domain"`
	UTMSource      string    `json:"utm_source,omitempty"`
	UTMMedium      string    `json:"utm_medium,omitempty"`
	UTMCampaign    string    `json:"utm_campaign,omitempty"`
	UTMTerm        string    `json:"utm_term,omitempty"`
	UTMContent     string    `json:"utm_content,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// DailyRollup is the per-link, per-day counter pair. Day is YYYY-MM-DD.
type DailyRollup struct {
	LinkID  string `json:"link_id"`
	Day     string `json:"date"`
	OwnerID string `json:"owner_id"`
	Clicks  int64  `json:"clicks"`
	Views   int64  `json:"views"`
}

// Link is the slice of the link store this service reads.
type Link struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// LinkClicks is a link with its click count inside a window.
type LinkClicks struct {
	LinkID string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Clicks int64  `json:"clicks"`
}

// KindCounts holds fact record counts split by interaction kind.
type KindCounts struct {
	Clicks int64 `json:"clicks"`
	Views  int64 `json:"views"`
	Shares int64 `json:"shares"`
}

// DatabaseStats holds row counts for metrics.
type DatabaseStats struct {
	EventsCount  int64 `json:"events_count"`
	RollupsCount int64 `json:"rollups_count"`
	LinksCount   int64 `json:"links_count"`
}
