package useragent

import (
	"testing"
)

const (
	uaChromeWindows  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	uaFirefoxWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0"
	uaSafariMac      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaEdgeWindows    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Edg/119.0.0.0"
	uaOpera          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0"
	uaIE11           = "Mozilla/5.0 (Windows NT 10.0; WOW64; Trident/7.0; rv:11.0) like Gecko"
	uaSafariIPhone   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaChromeIPhone   = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/119.0.6045.109 Mobile/15E148 Safari/604.1"
	uaSafariIPad     = "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaChromeAndroid  = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.6045.163 Mobile Safari/537.36"
	uaSamsung        = "Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) SamsungBrowser/23.0 Chrome/115.0.0.0 Mobile Safari/537.36"
	uaAndroidTablet  = "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 Tablet"
	uaChromeOS       = "Mozilla/5.0 (X11; CrOS x86_64 14541.0.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
	uaFirefoxLinux   = "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/119.0"
	uaFirefoxIOS     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) FxiOS/119.0 Mobile/15E148 Safari/605.1.15"
	uaGooglebot      = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestClassifyDevice_Empty(t *testing.T) {
	got := ClassifyDevice("")

	if got.Browser != Unknown {
		t.Errorf("Browser = %q, want %q", got.Browser, Unknown)
	}
	if got.OS != Unknown {
		t.Errorf("OS = %q, want %q", got.OS, Unknown)
	}
	if got.DeviceType != DeviceDesktop {
		t.Errorf("DeviceType = %q, want %q", got.DeviceType, DeviceDesktop)
	}
	if got.IsBot {
		t.Error("IsBot = true, want false")
	}
}

func TestClassifyDevice_Browsers(t *testing.T) {
	tests := []struct {
		name        string
		ua          string
		wantBrowser string
	}{
		{"Chrome on Windows", uaChromeWindows, "Chrome"},
		{"Firefox on Windows", uaFirefoxWindows, "Firefox"},
		{"Safari on macOS", uaSafariMac, "Safari"},
		{"Edge on Windows", uaEdgeWindows, "Edge"},
		{"Opera", uaOpera, "Opera"},
		{"Internet Explorer 11", uaIE11, "Internet Explorer"},
		{"Safari on iPhone", uaSafariIPhone, "Safari"},
		{"Chrome on iPhone", uaChromeIPhone, "Chrome"},
		{"Firefox on iPhone", uaFirefoxIOS, "Firefox"},
		{"Samsung Browser", uaSamsung, "Samsung Browser"},
		{"Chrome on Android", uaChromeAndroid, "Chrome"},
		{"curl", "curl/8.4.0", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDevice(tt.ua).Browser; got != tt.wantBrowser {
				t.Errorf("Browser = %q, want %q", got, tt.wantBrowser)
			}
		})
	}
}

func TestClassifyDevice_OperatingSystems(t *testing.T) {
	tests := []struct {
		name   string
		ua     string
		wantOS string
	}{
		{"Windows", uaChromeWindows, "Windows"},
		{"macOS", uaSafariMac, "macOS"},
		{"iPhone", uaSafariIPhone, "iOS"},
		{"iPad", uaSafariIPad, "iOS"},
		{"Android", uaChromeAndroid, "Android"},
		{"Chrome OS", uaChromeOS, "Chrome OS"},
		{"Linux", uaFirefoxLinux, "Linux"},
		{"unknown", "SomeClient/1.0", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDevice(tt.ua).OS; got != tt.wantOS {
				t.Errorf("OS = %q, want %q", got, tt.wantOS)
			}
		})
	}
}

func TestClassifyDevice_DeviceTypes(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		wantDevice string
	}{
		{"desktop Chrome", uaChromeWindows, DeviceDesktop},
		{"desktop Safari", uaSafariMac, DeviceDesktop},
		{"iPhone", uaSafariIPhone, DeviceMobile},
		{"Android phone", uaChromeAndroid, DeviceMobile},
		// iPad signatures also carry the generic "Mobile" token
		{"iPad wins over mobile", uaSafariIPad, DeviceTablet},
		{"explicit tablet marker", uaAndroidTablet, DeviceTablet},
		{"bare tokens", "ipad mobile", DeviceTablet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDevice(tt.ua).DeviceType; got != tt.wantDevice {
				t.Errorf("DeviceType = %q, want %q", got, tt.wantDevice)
			}
		})
	}
}

func TestClassifyDevice_CaseInsensitive(t *testing.T) {
	got := ClassifyDevice("MOZILLA/5.0 (IPAD; CPU OS 17_1) CHROME/119")
	if got.DeviceType != DeviceTablet || got.Browser != "Chrome" || got.OS != "iOS" {
		t.Errorf("ClassifyDevice() = %+v", got)
	}
}

func TestClassifyDevice_BrowserVersion(t *testing.T) {
	got := ClassifyDevice(uaFirefoxWindows)
	if got.BrowserVersion == "" {
		t.Error("BrowserVersion is empty for a Firefox signature")
	}
	if ClassifyDevice("curl/8.4.0").BrowserVersion != "" {
		t.Error("BrowserVersion set for an unknown browser")
	}
}

func TestClassifyDevice_Bots(t *testing.T) {
	tests := []struct {
		name    string
		ua      string
		wantBot string
	}{
		{"Googlebot", uaGooglebot, "Googlebot"},
		{"Twitterbot", "Twitterbot/1.0", "Twitterbot"},
		{"facebook preview", "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)", "Facebook"},
		{"generic crawler", "SomeCrawler/1.0", "Unknown Bot"},
		{"unlisted bot token", "Mozilla/5.0 (compatible; MJ12bot/v1.4.8; http://mj12bot.com/)", "Unknown Bot"},
		{"trailing bot", "ExampleLinkChecker Bot", "Unknown Bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDevice(tt.ua)
			if !got.IsBot {
				t.Fatal("IsBot = false, want true")
			}
			if got.BotName != tt.wantBot {
				t.Errorf("BotName = %q, want %q", got.BotName, tt.wantBot)
			}
		})
	}

	if ClassifyDevice(uaChromeWindows).IsBot {
		t.Error("regular browser flagged as bot")
	}
}

func TestClassifyDevice_DeviceNamesContainingBot(t *testing.T) {
	tests := []struct {
		name string
		ua   string
	}{
		{"cubot phone", "Mozilla/5.0 (Linux; Android 11; CUBOT KINGKONG 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/112.0.0.0 Mobile Safari/537.36"},
		{"cubot build tag", "Mozilla/5.0 (Linux; Android 10; KINGKONG_MINI2 Build/Cubot) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/96.0.4664.104 Mobile Safari/537.36"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyDevice(tt.ua)
			if got.IsBot {
				t.Errorf("IsBot = true (BotName %q), want a regular device", got.BotName)
			}
			if got.DeviceType != DeviceMobile {
				t.Errorf("DeviceType = %q, want %q", got.DeviceType, DeviceMobile)
			}
		})
	}
}
