package useragent

import (
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"

	Unknown = "Unknown"
)

// DeviceInfo is the metadata derived from a client signature.
type DeviceInfo struct {
	DeviceType     string // mobile, tablet, desktop
	Browser        string
	BrowserVersion string
	OS             string
	IsBot          bool
	BotName        string
}

type marker struct {
	name   string
	tokens []string
}

// Signatures carry overlapping tokens (Edge and Opera also say "chrome",
// Chrome also says "safari"), so the more specific markers go first.
var browserMarkers = []marker{
	{"Edge", []string{"edg/", "edge/"}},
	{"Opera", []string{"opr/", "opera"}},
	{"Samsung Browser", []string{"samsungbrowser"}},
	{"Chrome", []string{"chrome", "crios"}},
	{"Firefox", []string{"firefox", "fxios"}},
	{"Safari", []string{"safari"}},
	{"Internet Explorer", []string{"msie", "trident"}},
}

// iOS comes before macOS because iPhone signatures contain "like Mac OS X",
// and Android before Linux for the same reason.
var osMarkers = []marker{
	{"Windows", []string{"windows"}},
	{"iOS", []string{"iphone", "ipad", "ipod"}},
	{"Android", []string{"android"}},
	{"macOS", []string{"mac os", "macintosh"}},
	{"Chrome OS", []string{"cros"}},
	{"Linux", []string{"linux"}},
}

// knownBots maps bot signatures to their names, checked in order.
var knownBots = []struct{ signature, name string }{
	{"googlebot", "Googlebot"},
	{"bingbot", "Bingbot"},
	{"yandexbot", "YandexBot"},
	{"duckduckbot", "DuckDuckBot"},
	{"baiduspider", "Baiduspider"},
	{"facebookexternalhit", "Facebook"},
	{"facebot", "Facebook"},
	{"twitterbot", "Twitterbot"},
	{"linkedinbot", "LinkedInBot"},
	{"slackbot", "Slackbot"},
	{"discordbot", "Discordbot"},
	{"telegrambot", "TelegramBot"},
	{"whatsapp", "WhatsApp"},
	{"pinterestbot", "Pinterestbot"},
	{"applebot", "Applebot"},
	{"gptbot", "GPTBot"},
	{"bytespider", "ByteSpider"},
	{"ahrefsbot", "AhrefsBot"},
	{"semrushbot", "SemrushBot"},
	{"uptimerobot", "UptimeRobot"},
}

// ClassifyDevice derives device class, browser and OS from a raw client
// signature. It never fails: unrecognised input yields Unknown browser and
// OS on a desktop device.
func ClassifyDevice(signature string) DeviceInfo {
	lower := strings.ToLower(signature)

	info := DeviceInfo{
		DeviceType: classifyDeviceType(lower),
		Browser:    match(browserMarkers, lower),
		OS:         match(osMarkers, lower),
	}
	if signature == "" {
		return info
	}

	ua := useragent.New(signature)
	if info.Browser != Unknown {
		_, info.BrowserVersion = ua.Browser()
	}
	name := identifyBot(lower)
	if ua.Bot() || name != "" || hasBotToken(lower) || containsAny(lower, "crawler", "spider", "slurp") {
		info.IsBot = true
		info.BotName = name
		if name == "" {
			info.BotName = "Unknown Bot"
		}
	}
	return info
}

func classifyDeviceType(lower string) string {
	switch {
	case containsAny(lower, "tablet", "ipad"):
		return DeviceTablet
	case containsAny(lower, "mobile", "iphone", "ipod", "android"):
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}

func match(markers []marker, lower string) string {
	for _, m := range markers {
		if containsAny(lower, m.tokens...) {
			return m.name
		}
	}
	return Unknown
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func identifyBot(lower string) string {
	for _, b := range knownBots {
		if strings.Contains(lower, b.signature) {
			return b.name
		}
	}
	return ""
}

// hasBotToken reports whether "bot" ends a product token, as in
// "MJ12bot/1.4" or "ExampleBot;", or stands alone. Device names that merely
// contain the letters, such as "CUBOT KINGKONG", do not count.
func hasBotToken(lower string) bool {
	for i := 0; ; {
		j := strings.Index(lower[i:], "bot")
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len("bot")
		if end == len(lower) || strings.IndexByte("/;-", lower[end]) >= 0 {
			return true
		}
		if (start == 0 || !isLetter(lower[start-1])) && !isLetter(lower[end]) {
			return true
		}
		i = end
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
