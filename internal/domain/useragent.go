package domain

import "regexp"

const (
	DeviceTypeMobile  = "Mobile"
	DeviceTypeTablet  = "Tablet"
	DeviceTypeDesktop = "Desktop"

	UnknownBrowser = "Unknown Browser"
	UnknownOS      = "Unknown OS"
)

type uaRule struct {
	pattern *regexp.Regexp
	label   string
}

// Rules are evaluated in order and the first match wins. The order is part of
// the contract: "iPad" classifies as Mobile, and Chrome-based Edge as Chrome.
var (
	deviceTypeRules = []uaRule{
		{regexp.MustCompile(`(?i)Mobile|Android|iPhone|iPad|iPod`), DeviceTypeMobile},
		{regexp.MustCompile(`(?i)Tablet|iPad`), DeviceTypeTablet},
	}

	browserRules = []uaRule{
		{regexp.MustCompile(`(?i)Chrome`), "Chrome"},
		{regexp.MustCompile(`(?i)Firefox`), "Firefox"},
		{regexp.MustCompile(`(?i)Safari`), "Safari"},
		{regexp.MustCompile(`(?i)Edge`), "Edge"},
		{regexp.MustCompile(`(?i)Opera|OPR`), "Opera"},
	}

	osRules = []uaRule{
		{regexp.MustCompile(`(?i)Windows`), "Windows"},
		{regexp.MustCompile(`(?i)Mac`), "macOS"},
		{regexp.MustCompile(`(?i)Linux`), "Linux"},
		{regexp.MustCompile(`(?i)Android`), "Android"},
		{regexp.MustCompile(`(?i)iOS`), "iOS"},
	}
)

func classify(rules []uaRule, userAgent, fallback string) string {
	for _, rule := range rules {
		if rule.pattern.MatchString(userAgent) {
			return rule.label
		}
	}
	return fallback
}

func ClassifyDeviceType(userAgent string) string {
	return classify(deviceTypeRules, userAgent, DeviceTypeDesktop)
}

func ClassifyBrowser(userAgent string) string {
	return classify(browserRules, userAgent, UnknownBrowser)
}

func ClassifyOS(userAgent string) string {
	return classify(osRules, userAgent, UnknownOS)
}
