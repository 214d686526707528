package source

import (
	"net/url"
	"strings"
)

// Campaign holds UTM tags. An empty field means the tag was absent.
type Campaign struct {
	Source  string `json:"utm_source,omitempty"`
	Medium  string `json:"utm_medium,omitempty"`
	Name    string `json:"utm_campaign,omitempty"`
	Term    string `json:"utm_term,omitempty"`
	Content string `json:"utm_content,omitempty"`
}

// IsZero reports whether no tag was present.
func (c Campaign) IsZero() bool {
	return c == Campaign{}
}

// ExtractCampaignTags reads the five utm_* parameters from a URL's query.
// Malformed URLs yield an empty Campaign.
func ExtractCampaignTags(rawURL string) Campaign {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Campaign{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Campaign{}
	}
	// ParseQuery keeps the well-formed pairs when some are malformed.
	q, _ := url.ParseQuery(u.RawQuery)
	get := func(key string) string {
		return strings.TrimSpace(q.Get(key))
	}
	return Campaign{
		Source:  get("utm_source"),
		Medium:  get("utm_medium"),
		Name:    get("utm_campaign"),
		Term:    get("utm_term"),
		Content: get("utm_content"),
	}
}
