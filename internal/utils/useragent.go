package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientDevice is the device summary attached to request logs
type ClientDevice struct {
	Type     string `json:"type"` // mobile, tablet, desktop, bot, unknown
	OS       string `json:"os"`
	Browser  string `json:"browser"`
	Platform string `json:"platform"` // android, ios, windows, mac, linux
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

var platformMarkers = []struct {
	marker   string
	platform string
}{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"chrome os", "chromeos"},
	{"linux", "linux"},
	{"ubuntu", "linux"},
}

// ParseClientDevice summarises a User-Agent header
func ParseClientDevice(userAgent string) ClientDevice {
	if strings.TrimSpace(userAgent) == "" {
		return ClientDevice{Type: "unknown", OS: "Unknown", Browser: "Unknown", Platform: "unknown"}
	}

	parser := ua.New(userAgent)
	device := ClientDevice{
		Type:     deviceType(parser),
		OS:       osName(parser),
		Browser:  "Unknown",
		Platform: "unknown",
	}

	if name, version := parser.Browser(); name != "" {
		device.Browser = strings.TrimSpace(name + " " + version)
	}

	lowerOS := strings.ToLower(parser.OSInfo().Name)
	for _, p := range platformMarkers {
		if strings.Contains(lowerOS, p.marker) {
			device.Platform = p.platform
			break
		}
	}

	return device
}

func deviceType(parser *ua.UserAgent) string {
	if parser.Bot() {
		return "bot"
	}
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, marker := range tabletMarkers {
		if strings.Contains(lower, marker) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
