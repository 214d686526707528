// Package source classifies where a tracked interaction came from: the
// referring site and any campaign tags on the requested URL.
package source

import (
	"net/url"
	"strings"
)

const (
	MediumNone      = "none"
	MediumSocial    = "social"
	MediumOrganic   = "organic"
	MediumMessaging = "messaging"
	MediumReferral  = "referral"
)

// Referrer is the classified origin of an interaction.
type Referrer struct {
	Source string `json:"source"`
	Medium string `json:"medium"`
	Domain string `json:"domain"`
}

// Direct is the classification for a missing or unusable referrer.
var Direct = Referrer{Source: "Direct", Medium: MediumNone, Domain: "direct"}

type knownSite struct {
	source  string
	medium  string
	domains []string
}

var knownSites = []knownSite{
	{"Instagram", MediumSocial, []string{"instagram.com"}},
	{"Facebook", MediumSocial, []string{"facebook.com", "fb.com", "fb.me"}},
	{"Twitter", MediumSocial, []string{"t.co", "twitter.com", "x.com"}},
	{"LinkedIn", MediumSocial, []string{"linkedin.com", "lnkd.in"}},
	{"TikTok", MediumSocial, []string{"tiktok.com"}},
	{"YouTube", MediumSocial, []string{"youtube.com", "youtu.be"}},
	{"Pinterest", MediumSocial, []string{"pinterest.com", "pin.it"}},
	{"Reddit", MediumSocial, []string{"reddit.com", "redd.it"}},
	{"Snapchat", MediumSocial, []string{"snapchat.com"}},
	{"Threads", MediumSocial, []string{"threads.net", "threads.com"}},
	{"Bing", MediumOrganic, []string{"bing.com"}},
	{"DuckDuckGo", MediumOrganic, []string{"duckduckgo.com"}},
	{"Yahoo", MediumOrganic, []string{"yahoo.com"}},
	{"Baidu", MediumOrganic, []string{"baidu.com"}},
	{"Yandex", MediumOrganic, []string{"yandex.ru", "yandex.com"}},
	{"WhatsApp", MediumMessaging, []string{"whatsapp.com", "wa.me"}},
	{"Telegram", MediumMessaging, []string{"t.me", "telegram.org", "telegram.me"}},
	{"Discord", MediumMessaging, []string{"discord.com", "discord.gg", "discordapp.com"}},
	{"Messenger", MediumMessaging, []string{"messenger.com", "m.me"}},
}

// ClassifyReferrer maps a raw referrer URL to {source, medium, domain}.
// Empty or unparseable input is Direct.
func ClassifyReferrer(raw string) Referrer {
	host := referrerHost(raw)
	if host == "" {
		return Direct
	}
	domain := strings.TrimPrefix(host, "www.")

	for _, site := range knownSites {
		for _, d := range site.domains {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return Referrer{Source: site.source, Medium: site.medium, Domain: domain}
			}
		}
	}
	if isGoogle(domain) {
		return Referrer{Source: "Google", Medium: MediumOrganic, Domain: domain}
	}
	return Referrer{Source: domain, Medium: MediumReferral, Domain: domain}
}

func referrerHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	// Some clients send the bare host without a scheme.
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	return host
}

// isGoogle matches google.<tld> and google.co.<cc> or google.com.<cc>,
// including subdomains such as news.google.co.uk. A google label elsewhere
// in the host, as in google.example.com, is not Google.
func isGoogle(domain string) bool {
	labels := strings.Split(domain, ".")
	for i, l := range labels {
		if l != "google" {
			continue
		}
		switch rest := labels[i+1:]; len(rest) {
		case 1:
			if isTLD(rest[0]) {
				return true
			}
		case 2:
			if (rest[0] == "co" || rest[0] == "com") && len(rest[1]) == 2 && isTLD(rest[1]) {
				return true
			}
		}
	}
	return false
}

func isTLD(label string) bool {
	if len(label) < 2 {
		return false
	}
	for _, c := range label {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}
